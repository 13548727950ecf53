// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides flexible policies for deciding whether to
// retry failed attempts during an HTTP request plan execution, and how
// long to wait before retrying.
//
// The interface Policy defines a retry Policy. A Policy instance can be
// constructed using NewPolicy by providing a decision-maker, Decider,
// and a wait time calculator, Waiter. Both Decider and Waiter have
// constructors for common use cases, so that a useful policy can be
// quickly assembled:
//
//	decider := retry.Times(3).
//	               And(retry.NetworkErr.Or(retry.IdempotentErr))
//	waiter := retry.NewJitterWaiter(200*time.Millisecond, time.Minute, 0.2, time.Now())
//	policy := retry.NewPolicy(decider, waiter)
//
// The composition above is DefaultPolicy, except that DefaultPolicy
// retries immediately rather than backing off. Deciders are pure
// predicates over the execution state: they read it and answer, and
// never modify it or perform I/O, so composing them never compounds
// side effects.
//
// If the built-in functionality is insufficient, fully custom retry
// policies can be created via custom implementations of Decider,
// Waiter, or Policy.
package retry
