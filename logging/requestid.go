// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"net/http"

	"github.com/birchlake/retryhttp"
	"github.com/birchlake/retryhttp/request"

	"github.com/google/uuid"
)

// HeaderXRequestID is the standard header name for propagating a
// request identifier to the server.
const HeaderXRequestID = "X-Request-ID"

// idKey is the execution data key under which RequestID stores the
// execution's request identifier.
type idKey struct{}

// A RequestID is an event handler which stamps every request attempt
// in an execution with a shared request identifier header.
//
// The identifier is resolved once per execution, before the initial
// attempt: if the plan already carries the header, its value is kept
// unchanged; otherwise a fresh identifier is generated. Every attempt
// of the execution then sends the same identifier, so the attempts of
// one logical request, retries included, correlate in downstream
// server logs.
//
// The zero value uses the X-Request-ID header and generates random
// UUID identifiers.
type RequestID struct {
	// Header names the request header carrying the identifier. If
	// Header is empty, HeaderXRequestID is used.
	Header string

	// NewID generates an identifier for an execution whose plan does
	// not already carry one. If NewID is nil, a random UUID is
	// generated.
	NewID func() string
}

// Install adds the handler to the handler chains of the events it
// observes.
func (r *RequestID) Install(g *retryhttp.HandlerGroup) {
	g.PushBack(retryhttp.BeforeExecutionStart, r)
	g.PushBack(retryhttp.BeforeAttempt, r)
}

// Handle resolves the execution's request identifier (on
// BeforeExecutionStart) and stamps it onto the outgoing request (on
// BeforeAttempt).
func (r *RequestID) Handle(evt retryhttp.Event, e *request.Execution) {
	switch evt {
	case retryhttp.BeforeExecutionStart:
		e.SetValue(idKey{}, r.resolve(e))
	case retryhttp.BeforeAttempt:
		r.stamp(e)
	}
}

func (r *RequestID) resolve(e *request.Execution) string {
	if id := e.Plan.Header.Get(r.header()); id != "" {
		return id
	}
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r *RequestID) stamp(e *request.Execution) {
	id := ID(e)
	if id == "" {
		return
	}
	header := r.header()
	if e.Request.Header.Get(header) == id {
		return
	}
	// Clone before writing: the attempt request's header references
	// the plan's header map.
	h := e.Request.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(header, id)
	e.Request.Header = h
}

func (r *RequestID) header() string {
	if r.Header == "" {
		return HeaderXRequestID
	}
	return r.Header
}

// ID returns the request identifier which a RequestID handler stored
// in the execution, or the empty string if no identifier was stored.
//
// Other event handlers, Logger among them, may use ID to correlate
// their own output with the execution's request identifier.
func ID(e *request.Execution) string {
	id, _ := e.Value(idKey{}).(string)
	return id
}
