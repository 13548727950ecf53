// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package logging provides ready-made event handlers for structured
// logging of HTTP request plan executions, backed by zerolog.
//
// Logger writes one log event per request attempt, retry wait, and
// execution, carrying structured fields (method, url, attempt, status,
// elapsed time, and so on) so log aggregators can slice executions
// without parsing message text. RequestID stamps every attempt of an
// execution with a shared X-Request-ID header, generating an identifier
// when the plan does not already carry one, so all retries of one
// logical request correlate in downstream server logs.
//
// Install both in the same handler group to get request identifiers in
// the log events:
//
//	handlers := &retryhttp.HandlerGroup{}
//	(&logging.RequestID{}).Install(handlers)
//	logging.New(log).Install(handlers)
//	client := &retryhttp.Client{Handlers: handlers}
package logging
