// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/birchlake/retryhttp/request"
	"github.com/birchlake/retryhttp/transient"
)

// A Decider decides if a retry should be done.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
//
// Use the built-in constructors Times, StatusCode, StatusRange, Method,
// and Before, and the built-in deciders NetworkErr, IdempotentErr, and
// TransientErr; or implement your own Decider. Use DeciderFunc to
// convert an ordinary function into a Decider, and to compose deciders
// logically using DeciderFunc.And and DeciderFunc.Or.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It implements the Decider interface, and
// also provides the logical composition methods And and Or.
//
// Every DeciderFunc must be safe for concurrent use by multiple
// goroutines.
//
// Simple DeciderFunc functions can be composed into complex decision
// trees using the logical composition functions DeciderFunc.And and
// DeciderFunc.Or. Because of this composition ability, it will often
// be convenient to work directly with DeciderFunc rather than with
// Decider.
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is the number of times DefaultPolicy will retry.
const DefaultTimes = 3

// DefaultDecider is a general-purpose retry decider suitable for
// common use cases. It will allow up to DefaultTimes retries (i.e. up
// to 4 total attempts), and will retry in the case of a definite
// network error (NetworkErr), or of a failure on an idempotent request
// where a retry cannot cause a duplicate side effect (IdempotentErr).
//
// Client-side timeouts are deliberately outside both checks: a request
// that timed out may have reached the server, so retrying it is only
// safe when the caller knows the request is idempotent. Compose
// TransientErr into a custom decider to retry timeouts as well.
var DefaultDecider = Times(DefaultTimes).And(NetworkErr.Or(IdempotentErr))

// NetworkErr is a decider that indicates a retry if the most recent
// attempt failed before producing any HTTP response, with an error
// whose retry prospects are not known to be hopeless. It returns true
// if all of the following hold:
//
//   - no HTTP response was received;
//   - the attempt ended in a definite error;
//   - the error is not a client-side timeout (transient.Timeout), which
//     gets no free retry because the request may have reached the
//     server; and
//   - the error is not permanent per transient.Permanent (cancellation,
//     nonexistent DNS name, unreachable network or host, certificate
//     failure).
//
// Note the deny-list posture: any failure to obtain a response that is
// not recognizably permanent is considered worth retrying, because
// nothing was received that a retry could duplicate.
var NetworkErr DeciderFunc = networkErr

// IdempotentErr is a decider that indicates a retry if the most recent
// attempt failed but the request's method makes a retry safe. It
// returns true if all of the following hold:
//
//   - the error is not a client-side timeout (transient.Timeout);
//   - either no HTTP response was received (the attempt ended in an
//     error), or the response status code is in the 500-599 range; and
//   - the plan method is GET, HEAD, OPTIONS, PUT or DELETE, the methods
//     HTTP defines as idempotent, so repeating the request cannot
//     produce a second side effect.
//
// Unlike NetworkErr, IdempotentErr retries server error responses,
// because for idempotent methods even a request the server began
// processing is safe to repeat.
var IdempotentErr DeciderFunc = idempotentErr

// TransientErr is a decider that indicates a retry if the current
// error is transient according to transient.Categorize.
//
// TransientErr only looks at the error, so it will always return false
// if a valid HTTP response is returned. Compose it with other deciders,
// for example a status code decider constructed with StatusCode, to
// get more complex functionality.
var TransientErr DeciderFunc = transientErr

// Decide returns true if a retry should be done, and false otherwise,
// after examining the current HTTP request plan execution state.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two retry deciders into a new decider which returns true
// if both sub-deciders return true, and false otherwise.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two retry deciders into a new decider which returns
// true if either of the two sub-deciders returns true, but false if
// they both return false.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times constructs a retry decider which allows up to n retries. The
// returned decider returns true while the execution attempt index
// e.Attempt is less than n, and false otherwise.
//
// Compose Times into every decider that should bound the number of
// retries: the executing client retries for as long as its decider
// says yes, so a decider without a Times (or Before) term can retry
// forever.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before constructs a retry decider allowing retries until a certain
// amount of time has elapsed since the start of the logical HTTP request
// plan execution. The returned decider returns true while the execution
// duration is less than d, and false afterward.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode constructs a retry decider allowing retries based on the
// HTTP response status code. If the most recent request attempt within
// the plan execution received a valid HTTP response, and the response
// status code is contained in the list ss, the decider returns true.
// Otherwise, it returns false.
func StatusCode(ss ...int) DeciderFunc {
	ss2 := make([]int, len(ss))
	copy(ss2, ss)
	return func(e *request.Execution) bool {
		for _, s := range ss2 {
			if e.StatusCode() == s {
				return true
			}
		}
		return false
	}
}

// StatusRange constructs a retry decider allowing retries when the
// HTTP response status code falls within an inclusive range. If the
// most recent request attempt within the plan execution received a
// valid HTTP response, and lo <= status code <= hi, the decider
// returns true. Otherwise, it returns false.
//
// Both bounds must be positive, and hi must be at least lo.
func StatusRange(lo, hi int) DeciderFunc {
	if lo < 1 {
		panic("retryhttp/retry: lo must be positive")
	}
	if hi < lo {
		panic("retryhttp/retry: hi must be at least lo")
	}
	return func(e *request.Execution) bool {
		s := e.StatusCode()
		return lo <= s && s <= hi
	}
}

// Method constructs a retry decider allowing retries based on the plan
// method. If the plan's HTTP method is contained in the list ms, the
// decider returns true. Otherwise, it returns false. An empty plan
// method is compared as "GET", matching how net/http interprets it.
func Method(ms ...string) DeciderFunc {
	ms2 := make([]string, len(ms))
	copy(ms2, ms)
	return func(e *request.Execution) bool {
		m, ok := planMethod(e)
		if !ok {
			return false
		}
		for _, s := range ms2 {
			if m == s {
				return true
			}
		}
		return false
	}
}

func networkErr(e *request.Execution) bool {
	return e.Response == nil && e.Err != nil &&
		transient.Categorize(e.Err) != transient.Timeout &&
		!transient.Permanent(e.Err)
}

// idempotentMethods are the methods RFC 7231 section 4.2.2 defines as
// idempotent, minus TRACE, which nobody retries in practice.
var idempotentMethods = []string{"GET", "HEAD", "OPTIONS", "PUT", "DELETE"}

func idempotentErr(e *request.Execution) bool {
	m, ok := planMethod(e)
	if !ok {
		return false
	}
	if transient.Categorize(e.Err) == transient.Timeout {
		return false
	}
	failed := (e.Response == nil && e.Err != nil) ||
		(500 <= e.StatusCode() && e.StatusCode() <= 599)
	if !failed {
		return false
	}
	for _, s := range idempotentMethods {
		if m == s {
			return true
		}
	}
	return false
}

func transientErr(e *request.Execution) bool {
	return transient.Categorize(e.Err) != transient.Not
}

// planMethod returns the effective method of the execution's plan. The
// second return value is false if the execution has no plan at all.
func planMethod(e *request.Execution) (string, bool) {
	if e.Plan == nil {
		return "", false
	}
	if e.Plan.Method == "" {
		return "GET", true
	}
	return e.Plan.Method, true
}
