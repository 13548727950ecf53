// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/birchlake/retryhttp/request"
)

// A Waiter specifies how long to wait before retrying a failed HTTP request
// attempt.
//
// Implementations of Waiter must be safe for concurrent use by multiple
// goroutines.
//
// The robust HTTP client, retryhttp.Client, will not call the Waiter on a
// retry policy if the policy Decider returned false.
//
// This package provides Waiter implementations via the constructor
// functions NewFixedWaiter, NewExpWaiter, NewJitterWaiter and
// NewRetryAfterWaiter. In addition it provides two concrete instances,
// DefaultWaiter and BackoffWaiter.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// DefaultWaiter is the default retry wait policy. It waits zero time,
// retrying immediately. Use BackoffWaiter, or construct a custom
// waiter, to space retries out.
var DefaultWaiter = NewFixedWaiter(0)

// BackoffWaiter is a retry wait policy implementing exponential backoff
// with proportional jitter. The wait before the first retry falls in
// the range 200 to 240 milliseconds, and the range doubles with each
// further retry: 400 to 480 milliseconds before the second retry, 800
// to 960 before the third, and so on without a practical upper bound.
// The 20% jitter window spreads out clients that started failing at the
// same moment.
var BackoffWaiter = NewJitterWaiter(200*time.Millisecond, maxWait, 0.2, time.Now())

// maxWait is the largest representable wait, around 292 years.
const maxWait = time.Duration(1<<63 - 1)

// NewFixedWaiter constructs a Waiter that always returns the given
// duration.
//
// Use NewFixedWaiter to obtain a constant retry backoff.
func NewFixedWaiter(d time.Duration) Waiter {
	return fixedWaiter(d)
}

type fixedWaiter time.Duration

func (w fixedWaiter) Wait(_ *request.Execution) time.Duration {
	return time.Duration(w)
}

// NewExpWaiter constructs a Waiter implementing an exponential backoff
// formula with optional jitter.
//
// The formula implemented is the "Full Jitter" approach described in:
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter.
//
// Parameters base and max control the exponential calculation of the
// ceiling:
//
//	ceil := max(base * 2**attempt, max)
//
// Base and max must be positive values, and max must be at least equal
// to base.
//
// Parameter jitter is used to generate a random number between 0 and
// ceil. To make a waiter that does not jitter and simply returns
// ceil on each attempt, pass nil for jitter. Otherwise you may specify
// either a random number generator seed value (as a time.Time, int, or
// int64) or a random number generator (as a rand.Source). If a seed
// value is specified, it is used to seed a random number generator
// for calculating jitter. If a rand.Source is specified, it is used to
// calculate jitter.
func NewExpWaiter(base, max time.Duration, jitter any) Waiter {
	if base < 1 {
		panic("retryhttp/retry: base must be positive")
	}
	if max < base {
		panic("retryhttp/retry: max must be at least base")
	}
	r := jitterToRand(jitter)
	return &jitterExpWaiter{
		base: base,
		max:  max,
		rand: r,
	}
}

type jitterExpWaiter struct {
	base time.Duration
	max  time.Duration
	rand *rand.Rand
	lock sync.Mutex
}

func (w *jitterExpWaiter) Wait(e *request.Execution) time.Duration {
	exp := int64(1) << e.Attempt
	if exp < 1 {
		exp = 1<<63 - 1
	}

	ceil := int64(w.base) * exp
	if ceil < int64(w.base) || int64(w.max) < ceil {
		ceil = int64(w.max)
	}

	duration := ceil
	if ceil > 0 {
		w.lock.Lock()
		defer w.lock.Unlock()
		if w.rand != nil {
			duration = w.rand.Int63n(ceil)
		}
	}

	return time.Duration(duration)
}

// NewJitterWaiter constructs a Waiter implementing an exponential
// backoff formula with proportional jitter.
//
// Parameters base and max control the exponential calculation of the
// pre-jitter wait:
//
//	d := min(base * 2**attempt, max)
//
// Base and max must be positive values, and max must be at least equal
// to base.
//
// Parameter frac controls the jitter amplitude. A uniform random extra
// between zero and frac*d is added to d, so the returned wait falls in
// the interval [d, (1+frac)*d). Frac must be in the range [0, 1].
// Unlike the "Full Jitter" approach of NewExpWaiter, which randomizes
// over the whole interval below the ceiling, a proportional-jitter
// waiter never waits less than the exponential series value d, keeping
// the lower edge of the backoff schedule predictable.
//
// Parameter jitter accepts the same values as in NewExpWaiter: nil (no
// jitter; the wait is exactly d), a random number generator seed value
// (as a time.Time, int, or int64), or a random number generator (as a
// rand.Source or *rand.Rand).
func NewJitterWaiter(base, max time.Duration, frac float64, jitter any) Waiter {
	if base < 1 {
		panic("retryhttp/retry: base must be positive")
	}
	if max < base {
		panic("retryhttp/retry: max must be at least base")
	}
	if frac < 0 || frac > 1 {
		panic("retryhttp/retry: frac must be in [0, 1]")
	}
	r := jitterToRand(jitter)
	return &jitterPropWaiter{
		base: base,
		max:  max,
		frac: frac,
		rand: r,
	}
}

type jitterPropWaiter struct {
	base time.Duration
	max  time.Duration
	frac float64
	rand *rand.Rand
	lock sync.Mutex
}

func (w *jitterPropWaiter) Wait(e *request.Execution) time.Duration {
	exp := int64(1) << e.Attempt
	if exp < 1 {
		exp = 1<<63 - 1
	}

	d := int64(w.base) * exp
	if d < int64(w.base) || int64(w.max) < d {
		d = int64(w.max)
	}

	duration := d
	if w.rand != nil && w.frac > 0 {
		w.lock.Lock()
		defer w.lock.Unlock()
		extra := int64(w.rand.Float64() * w.frac * float64(d))
		if duration > 1<<63-1-extra {
			duration = 1<<63 - 1
		} else {
			duration += extra
		}
	}

	return time.Duration(duration)
}

// NewRetryAfterWaiter constructs a Waiter that honors the Retry-After
// response header when the server sends one, and otherwise delegates to
// the given fallback Waiter.
//
// Both header forms from RFC 7231 section 7.1.3 are understood: a
// non-negative integer number of seconds, and an HTTP-date after which
// to retry (an HTTP-date already in the past yields a zero wait). A
// header the server filled with anything else is ignored and the
// fallback consulted instead.
//
// Parameter max caps the wait taken from the header, protecting the
// execution from a server that asks for an absurd pause. Max must be
// positive. The cap applies only to header-derived waits, never to the
// fallback's result.
func NewRetryAfterWaiter(fallback Waiter, max time.Duration) Waiter {
	if fallback == nil {
		panic("retryhttp/retry: fallback waiter may not be nil")
	}
	if max < 1 {
		panic("retryhttp/retry: max must be positive")
	}
	return &retryAfterWaiter{
		fallback: fallback,
		max:      max,
	}
}

type retryAfterWaiter struct {
	fallback Waiter
	max      time.Duration
}

func (w *retryAfterWaiter) Wait(e *request.Execution) time.Duration {
	if value := e.Header().Get("Retry-After"); value != "" {
		if d, ok := parseRetryAfter(value); ok {
			if d > w.max {
				return w.max
			}
			return d
		}
	}
	return w.fallback.Wait(e)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func jitterToRand(jitter any) *rand.Rand {
	var s rand.Source
	switch j := jitter.(type) {
	case nil:
		return nil
	case time.Time:
		s = rand.NewSource(j.UnixNano())
	case int:
		s = rand.NewSource(int64(j))
	case int64:
		s = rand.NewSource(j)
	case *rand.Rand:
		if j == nil {
			panic("retryhttp/retry: jitter may not be a typed nil")
		}
		return j
	case rand.Source:
		s = j
	default:
		panic("retryhttp/retry: invalid jitter type")
	}
	return rand.New(s)
}
