// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package telemetry provides a ready-made event handler which
// instruments HTTP request plan executions with OpenTelemetry traces
// and metrics.
//
// Observer records one client span per execution with one child span
// per request attempt, so a trace shows every retry the robust client
// made on behalf of one logical request. It also counts attempts,
// retries, and attempt timeouts, records a histogram of attempt
// durations, and injects W3C trace context headers into every outgoing
// attempt so downstream servers join the same trace.
//
// Install an Observer built from the global OpenTelemetry providers:
//
//	handlers := &retryhttp.HandlerGroup{}
//	telemetry.New().Install(handlers)
//	client := &retryhttp.Client{Handlers: handlers}
//
// Pass a Config to bind the Observer to explicit providers instead of
// the globals.
package telemetry
