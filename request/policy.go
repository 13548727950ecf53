// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"time"
)

// The interfaces below restate the method sets of retry.Decider,
// retry.Waiter and timeout.Policy so a Plan can carry per-plan policy
// overrides without this package importing the policy packages. Any
// value satisfying those interfaces satisfies these.

// A RetryDecider decides whether a retry should be done. Plans use it
// to override the executing client's retry decision logic.
type RetryDecider interface {
	// Decide returns true if the most recent request attempt within
	// the given execution should be retried, and false otherwise.
	Decide(e *Execution) bool
}

// A RetryWaiter decides how long to wait before retrying. Plans use it
// to override the executing client's retry wait logic.
type RetryWaiter interface {
	// Wait returns the wait time before the next retry for the given
	// execution.
	Wait(e *Execution) time.Duration
}

// A TimeoutPolicy sets the timeout for each request attempt. Plans use
// it to override the executing client's attempt timeout logic.
type TimeoutPolicy interface {
	// Timeout returns the timeout for the upcoming request attempt
	// within the given execution.
	Timeout(e *Execution) time.Duration
}
