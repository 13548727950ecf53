// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout defines flexible policies for setting HTTP timeouts
// during an HTTP request plan execution, including on retries. A
// generic interface for timeout policies is provided, Policy, along
// with several useful policy generating functions and built-in
// policies.
//
// The two most useful generators embody opposite philosophies. Fixed
// gives every attempt the same fresh timeout, so retries extend the
// execution's total running time. Budget shares one allowance across
// the whole execution, so retries only ever spend what the earlier
// attempts and waits left over.
package timeout
