// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/birchlake/retryhttp"
	"github.com/birchlake/retryhttp/request"
	"github.com/birchlake/retryhttp/transient"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// scopeName identifies this instrumentation scope to OpenTelemetry.
const scopeName = "github.com/birchlake/retryhttp/telemetry"

// Metric names, following the OpenTelemetry semantic convention style
// for HTTP client instruments.
const (
	metricAttempts        = "http.client.attempts"
	metricRetries         = "http.client.retries"
	metricAttemptTimeouts = "http.client.attempt_timeouts"
	metricAttemptDuration = "http.client.attempt.duration"
)

// Attribute keys. The http.* and server.* and error.* keys follow the
// OpenTelemetry semantic conventions; the retryhttp.* keys describe
// robust client state the conventions have no name for.
const (
	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrServerAddress      = "server.address"
	attrURLFull            = "url.full"
	attrErrorType          = "error.type"
	attrResendCount        = "http.request.resend_count"
	attrAttempts           = "retryhttp.attempts"
	attrAttemptTimeouts    = "retryhttp.attempt_timeouts"
	attrWaitMillis         = "retryhttp.wait_ms"
)

// Attempt duration histogram buckets. These are the OpenTelemetry
// recommended boundaries for HTTP request latency measurement.
var durationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

// executionSpanKey is the execution data key under which Observer
// stores the execution span.
type executionSpanKey struct{}

// attemptSpanKey is the execution data key under which Observer stores
// the span of the current or most recent request attempt.
type attemptSpanKey struct{}

// A Config customizes the OpenTelemetry plumbing behind an Observer.
// The zero value binds the Observer to the global OpenTelemetry
// providers and propagator.
type Config struct {
	// TracerProvider supplies the tracer recording execution and
	// attempt spans. If TracerProvider is nil, the global provider is
	// used.
	TracerProvider trace.TracerProvider

	// MeterProvider supplies the meter recording execution metrics. If
	// MeterProvider is nil, the global provider is used.
	MeterProvider metric.MeterProvider

	// Propagator injects trace context headers into outgoing request
	// attempts. If Propagator is nil, the global propagator is used.
	Propagator propagation.TextMapPropagator
}

// An Observer is an event handler which instruments HTTP request plan
// executions with OpenTelemetry traces and metrics.
//
// Each execution is recorded as one client span, with one child span
// per request attempt, and W3C trace context headers are injected into
// every outgoing attempt. Observer also counts attempts sent, retries
// scheduled, and attempt timeouts, and records a histogram of attempt
// durations in seconds. Metric and span attributes bucket outcomes by
// HTTP method, server address, response status code, and error type.
//
// The zero value Observer is inert; use New. An Observer is safe for
// concurrent use by multiple goroutines and may be installed in any
// number of handler groups.
type Observer struct {
	tracer          trace.Tracer
	propagator      propagation.TextMapPropagator
	attempts        metric.Int64Counter
	retries         metric.Int64Counter
	attemptTimeouts metric.Int64Counter
	duration        metric.Float64Histogram
}

// New constructs an Observer. With no Config, the Observer binds to
// the global OpenTelemetry tracer provider, meter provider, and
// propagator.
//
// Instrument registration failures are logged to the standard error
// stream and the affected instrument is skipped; they never fail the
// construction, and never affect request execution.
func New(config ...Config) *Observer {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	pr := cfg.Propagator
	if pr == nil {
		pr = otel.GetTextMapPropagator()
	}

	o := &Observer{
		tracer:     tp.Tracer(scopeName),
		propagator: pr,
	}
	meter := mp.Meter(scopeName)
	var err error
	o.attempts, err = meter.Int64Counter(metricAttempts,
		metric.WithDescription("Number of HTTP request attempts sent"),
		metric.WithUnit("{attempt}"))
	logMetricError(metricAttempts, err)
	o.retries, err = meter.Int64Counter(metricRetries,
		metric.WithDescription("Number of retries scheduled after failed request attempts"),
		metric.WithUnit("{retry}"))
	logMetricError(metricRetries, err)
	o.attemptTimeouts, err = meter.Int64Counter(metricAttemptTimeouts,
		metric.WithDescription("Number of request attempts ended by an attempt timeout"),
		metric.WithUnit("{timeout}"))
	logMetricError(metricAttemptTimeouts, err)
	o.duration, err = meter.Float64Histogram(metricAttemptDuration,
		metric.WithDescription("Duration of HTTP request attempts"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	logMetricError(metricAttemptDuration, err)
	return o
}

// logMetricError logs an instrument registration error to the standard
// error stream. Metric failures must not break request execution.
func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "retryhttp/telemetry: failed to create instrument %s: %v\n", name, err)
	}
}

// Install adds the observer to the handler chains of the events it
// observes.
func (o *Observer) Install(g *retryhttp.HandlerGroup) {
	g.PushBack(retryhttp.BeforeExecutionStart, o)
	g.PushBack(retryhttp.BeforeAttempt, o)
	g.PushBack(retryhttp.AfterAttemptTimeout, o)
	g.PushBack(retryhttp.AfterAttempt, o)
	g.PushBack(retryhttp.BeforeWait, o)
	g.PushBack(retryhttp.AfterExecutionEnd, o)
}

// Handle records the traces and metrics for evt.
func (o *Observer) Handle(evt retryhttp.Event, e *request.Execution) {
	switch evt {
	case retryhttp.BeforeExecutionStart:
		o.startExecution(e)
	case retryhttp.BeforeAttempt:
		o.startAttempt(e)
	case retryhttp.AfterAttemptTimeout:
		o.countTimeout(e)
	case retryhttp.AfterAttempt:
		o.endAttempt(e)
	case retryhttp.BeforeWait:
		o.countRetry(e)
	case retryhttp.AfterExecutionEnd:
		o.endExecution(e)
	}
}

func (o *Observer) startExecution(e *request.Execution) {
	if o.tracer == nil {
		return
	}
	ctx, span := o.tracer.Start(e.Plan.Context(), planMethod(e.Plan),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(planAttrs(e)...))
	e.SetValue(executionSpanKey{}, span)
	// Ride the span on the plan context so attempt requests, and the
	// attempt spans started from them, inherit it.
	e.Plan = e.Plan.WithContext(ctx)
}

func (o *Observer) startAttempt(e *request.Execution) {
	if o.tracer == nil {
		return
	}
	attrs := planAttrs(e)
	if e.Attempt > 0 {
		attrs = append(attrs, attribute.Int(attrResendCount, e.Attempt))
	}
	ctx, span := o.tracer.Start(e.Request.Context(), planMethod(e.Plan)+" attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	e.SetValue(attemptSpanKey{}, span)
	// Clone before writing: the attempt request's header references
	// the plan's header map.
	h := e.Request.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	o.propagator.Inject(ctx, propagation.HeaderCarrier(h))
	e.Request.Header = h
}

func (o *Observer) countTimeout(e *request.Execution) {
	if o.attemptTimeouts == nil {
		return
	}
	o.attemptTimeouts.Add(e.Plan.Context(), 1, metric.WithAttributes(
		attribute.String(attrHTTPRequestMethod, planMethod(e.Plan))))
}

func (o *Observer) endAttempt(e *request.Execution) {
	elapsed := time.Since(e.AttemptStart)
	attrs := attemptAttrs(e)
	ctx := e.Plan.Context()
	if o.attempts != nil {
		o.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if o.duration != nil {
		o.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
	span := AttemptSpan(e)
	if span == nil {
		return
	}
	markSpan(span, e)
	span.End()
}

func (o *Observer) countRetry(e *request.Execution) {
	if span := ExecutionSpan(e); span != nil {
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int64(attrWaitMillis, e.Wait.Milliseconds())))
	}
	if o.retries == nil {
		return
	}
	o.retries.Add(e.Plan.Context(), 1, metric.WithAttributes(
		attribute.String(attrHTTPRequestMethod, planMethod(e.Plan))))
}

func (o *Observer) endExecution(e *request.Execution) {
	span := ExecutionSpan(e)
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int(attrAttempts, e.Attempt+1),
		attribute.Int(attrAttemptTimeouts, e.AttemptTimeouts))
	markSpan(span, e)
	span.End(trace.WithTimestamp(e.End))
}

// markSpan transfers the outcome of the most recent request attempt
// onto a span. Client spans are marked as errors both for transport
// errors and for HTTP status codes of 400 and above.
func markSpan(span trace.Span, e *request.Execution) {
	status := e.StatusCode()
	if status > 0 {
		span.SetAttributes(attribute.Int(attrHTTPResponseStatus, status))
	}
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	} else if status >= 400 {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// ExecutionSpan returns the execution span which an Observer stored in
// the execution, or nil if no span was stored. The span is available
// from the BeforeExecutionStart event onward and other event handlers
// may use it, for example to add events of their own.
func ExecutionSpan(e *request.Execution) trace.Span {
	span, _ := e.Value(executionSpanKey{}).(trace.Span)
	return span
}

// AttemptSpan returns the span of the current or most recent request
// attempt which an Observer stored in the execution, or nil if no span
// was stored. The span of an attempt is available from the attempt's
// BeforeAttempt event onward and is ended when the attempt concludes.
func AttemptSpan(e *request.Execution) trace.Span {
	span, _ := e.Value(attemptSpanKey{}).(trace.Span)
	return span
}

func planAttrs(e *request.Execution) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrHTTPRequestMethod, planMethod(e.Plan)),
		attribute.String(attrURLFull, planURL(e.Plan)),
		attribute.String(attrServerAddress, serverAddress(e.Plan)),
	}
}

func attemptAttrs(e *request.Execution) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(attrHTTPRequestMethod, planMethod(e.Plan)),
		attribute.String(attrServerAddress, serverAddress(e.Plan)),
	}
	if status := e.StatusCode(); status > 0 {
		attrs = append(attrs, attribute.Int(attrHTTPResponseStatus, status))
	}
	if errorType := classifyError(e); errorType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errorType))
	}
	return attrs
}

// classifyError returns an error type string for the most recent
// request attempt, or the empty string for an attempt which concluded
// without error. Transport errors are bucketed by transient category
// where one is recognized; HTTP status codes of 400 and above are
// bucketed by status code.
func classifyError(e *request.Execution) string {
	if e.Err != nil {
		switch transient.Categorize(e.Err) {
		case transient.Timeout:
			return "timeout"
		case transient.ConnRefused:
			return "connection_refused"
		case transient.ConnReset:
			return "connection_reset"
		case transient.BrokenPipe:
			return "broken_pipe"
		}
		return "other"
	}
	if status := e.StatusCode(); status >= 400 {
		return strconv.Itoa(status)
	}
	return ""
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

func serverAddress(p *request.Plan) string {
	if p.URL == nil {
		return ""
	}
	return p.URL.Hostname()
}
