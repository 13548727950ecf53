// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors from HTTP request execution as
// transient, permanent, or neither. This is handy for writing retry
// policies, and for other purposes such as bucketing error metrics.
//
// Categorize names error kinds known to be worth retrying (timeouts,
// refused or reset connections, broken pipes). Permanent names error
// kinds known never to be worth retrying (explicit cancellation,
// nonexistent DNS names, unreachable networks, certificate failures).
// Most retry policies combine the two: retry what is not Permanent,
// treat what Categorize recognizes as a bonus signal.
//
// Package transient is extremely lightweight, as it depends only on
// standard library packages, so it doesn't bring any significant
// dependencies when imported as a standalone package.
package transient
