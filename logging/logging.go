// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"net/http"
	"strconv"
	"time"

	"github.com/birchlake/retryhttp"
	"github.com/birchlake/retryhttp/request"

	"github.com/rs/zerolog"
)

// Log event messages. The message is constant per event kind so that
// the structured fields carry all the variable information.
const (
	msgRequest     = "robust client request"
	msgResponse    = "robust client response"
	msgRetry       = "robust client retry"
	msgPlanTimeout = "robust client plan timeout"
	msgExecution   = "robust client execution"
)

// DefaultMaxPayloadBytes is the maximum number of payload bytes
// included in a single log event when payload logging is enabled and
// Logger's MaxPayloadBytes field is zero.
const DefaultMaxPayloadBytes = 1024

// A Logger is an event handler which writes structured log events
// describing the progress of an HTTP request plan execution.
//
// Logger writes one event per request attempt sent (message "robust
// client request"), per attempt concluded ("robust client response"),
// per retry scheduled ("robust client retry"), per plan timeout
// ("robust client plan timeout"), and per execution ended ("robust
// client execution"). Attempts and executions which end in error are
// logged at warning level with an error field; everything else is
// logged at information level, except payload previews, which are
// logged at debug level.
//
// If a RequestID handler is installed in the same handler group, every
// event carries a request_id field containing the execution's request
// identifier.
//
// The zero value Logger discards all log events. Logger is safe for
// concurrent use by multiple goroutines as long as its fields are not
// modified after the first request plan execution starts.
type Logger struct {
	// Log is the destination for log events.
	Log zerolog.Logger

	// Payloads indicates whether to log request and response bodies.
	// Payload events are logged at debug level and truncated to
	// MaxPayloadBytes.
	Payloads bool

	// MaxPayloadBytes limits the number of payload bytes included in a
	// single log event. If MaxPayloadBytes is zero or negative,
	// DefaultMaxPayloadBytes is used.
	MaxPayloadBytes int
}

// New constructs a Logger writing to log.
func New(log zerolog.Logger) *Logger {
	return &Logger{Log: log}
}

// Install adds the logger to the handler chains of the events it
// observes.
func (l *Logger) Install(g *retryhttp.HandlerGroup) {
	g.PushBack(retryhttp.BeforeAttempt, l)
	g.PushBack(retryhttp.AfterAttempt, l)
	g.PushBack(retryhttp.BeforeWait, l)
	g.PushBack(retryhttp.AfterPlanTimeout, l)
	g.PushBack(retryhttp.AfterExecutionEnd, l)
}

// Handle writes the log events for evt.
func (l *Logger) Handle(evt retryhttp.Event, e *request.Execution) {
	switch evt {
	case retryhttp.BeforeAttempt:
		l.logRequest(e)
	case retryhttp.AfterAttempt:
		l.logResponse(e)
	case retryhttp.BeforeWait:
		l.logRetry(e)
	case retryhttp.AfterPlanTimeout:
		l.logPlanTimeout(e)
	case retryhttp.AfterExecutionEnd:
		l.logExecution(e)
	}
}

func (l *Logger) logRequest(e *request.Execution) {
	evt := l.Log.Info().
		Str("direction", "outbound").
		Str("method", planMethod(e.Plan)).
		Str("url", planURL(e.Plan)).
		Int("attempt", e.Attempt)
	evt = requestID(evt, e)
	if n := len(e.Request.Header); n > 0 {
		evt = evt.Int("header_count", n)
	}
	if n := len(e.Plan.Body); n > 0 {
		evt = evt.Int("body_size", n)
	}
	evt.Msg(msgRequest)
	l.logPayload(e, "outbound", e.Request.Header, e.Plan.Body, msgRequest)
}

func (l *Logger) logResponse(e *request.Execution) {
	evt := l.Log.Info()
	if e.Err != nil {
		evt = l.Log.Warn().Err(e.Err)
	}
	evt = evt.
		Str("direction", "inbound").
		Str("method", planMethod(e.Plan)).
		Str("url", planURL(e.Plan)).
		Int("attempt", e.Attempt).
		Dur("elapsed", time.Since(e.AttemptStart))
	if status := e.StatusCode(); status > 0 {
		evt = evt.Int("status", status)
	}
	evt = requestID(evt, e)
	if n := len(e.Body); n > 0 {
		evt = evt.Int("body_size", n)
	}
	evt.Msg(msgResponse)
	if e.Err == nil {
		l.logPayload(e, "inbound", e.Header(), e.Body, msgResponse)
	}
}

func (l *Logger) logRetry(e *request.Execution) {
	evt := l.Log.Info().
		Str("method", planMethod(e.Plan)).
		Str("url", planURL(e.Plan)).
		Dur("wait", e.Wait).
		Int("next_attempt", e.Attempt+1)
	evt = requestID(evt, e)
	evt.Msg(msgRetry)
}

func (l *Logger) logPlanTimeout(e *request.Execution) {
	evt := l.Log.Warn().
		Str("method", planMethod(e.Plan)).
		Str("url", planURL(e.Plan)).
		Int("attempt", e.Attempt).
		Dur("elapsed", e.Duration())
	evt = requestID(evt, e)
	evt.Msg(msgPlanTimeout)
}

func (l *Logger) logExecution(e *request.Execution) {
	evt := l.Log.Info()
	if e.Err != nil {
		evt = l.Log.Warn().Err(e.Err)
	}
	evt = evt.
		Str("method", planMethod(e.Plan)).
		Str("url", planURL(e.Plan)).
		Int("attempts", e.Attempt+1).
		Dur("elapsed", e.Duration())
	if status := e.StatusCode(); status > 0 {
		evt = evt.Int("status", status)
	}
	if e.AttemptTimeouts > 0 {
		evt = evt.Int("attempt_timeouts", e.AttemptTimeouts)
	}
	evt = requestID(evt, e)
	evt.Msg(msgExecution)
}

func (l *Logger) logPayload(e *request.Execution, direction string, header http.Header, body []byte, msg string) {
	if !l.Payloads || len(body) == 0 {
		return
	}
	preview, truncated := l.preview(body)
	evt := l.Log.Debug().
		Str("direction", direction).
		Str("method", planMethod(e.Plan)).
		Str("url", planURL(e.Plan)).
		Int("attempt", e.Attempt)
	evt = requestID(evt, e)
	evt.Interface("headers", header).
		Int("body_size", len(body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview).
		Msg(msg)
}

func (l *Logger) preview(body []byte) ([]byte, bool) {
	max := l.MaxPayloadBytes
	if max <= 0 {
		max = DefaultMaxPayloadBytes
	}
	if len(body) > max {
		return body[:max], true
	}
	return body, false
}

func requestID(evt *zerolog.Event, e *request.Execution) *zerolog.Event {
	if id := ID(e); id != "" {
		return evt.Str("request_id", id)
	}
	return evt
}

func planMethod(p *request.Plan) string {
	if p.Method == "" {
		return "GET"
	}
	return p.Method
}

func planURL(p *request.Plan) string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}
