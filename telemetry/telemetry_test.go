// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/birchlake/retryhttp"
	"github.com/birchlake/retryhttp/request"
	"github.com/birchlake/retryhttp/retry"
	"github.com/birchlake/retryhttp/timeout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestObserver(t *testing.T) {
	t.Run("retried execution", func(t *testing.T) {
		o, exporter, reader := setupObserver(t)
		doer := &scriptDoer{script: []script{
			fail(errors.New("kaboom")),
			respond(200, "hello"),
		}}
		handlers := &retryhttp.HandlerGroup{}
		o.Install(handlers)
		cl := &retryhttp.Client{
			HTTPDoer: doer,
			RetryPolicy: retry.NewPolicy(
				retry.Times(1).And(retry.NetworkErr),
				retry.NewFixedWaiter(time.Millisecond)),
			Handlers: handlers,
		}
		p, err := request.NewPlan("GET", "http://test.invalid/widgets", nil)
		require.NoError(t, err)

		e, err := cl.Do(p)

		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, 200, e.StatusCode())

		spans := exporter.GetSpans()
		require.Len(t, spans, 3)
		assert.Equal(t, "GET attempt", spans[0].Name)
		assert.Equal(t, "GET attempt", spans[1].Name)
		assert.Equal(t, "GET", spans[2].Name)
		for _, span := range spans {
			assert.Equal(t, trace.SpanKindClient, span.SpanKind)
			assert.Equal(t, spans[2].SpanContext.TraceID(), span.SpanContext.TraceID())
		}
		assert.Equal(t, spans[2].SpanContext.SpanID(), spans[0].Parent.SpanID())
		assert.Equal(t, spans[2].SpanContext.SpanID(), spans[1].Parent.SpanID())
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
		assertAttribute(t, spans[0].Attributes, attrHTTPRequestMethod, "GET")
		assertAttribute(t, spans[0].Attributes, attrURLFull, "http://test.invalid/widgets")
		assertAttribute(t, spans[0].Attributes, attrServerAddress, "test.invalid")
		assert.False(t, hasAttribute(spans[0].Attributes, attrResendCount))
		assert.Equal(t, codes.Unset, spans[1].Status.Code)
		assertAttribute(t, spans[1].Attributes, attrResendCount, 1)
		assertAttribute(t, spans[1].Attributes, attrHTTPResponseStatus, 200)
		assert.Equal(t, codes.Unset, spans[2].Status.Code)
		assertAttribute(t, spans[2].Attributes, attrAttempts, 2)
		assertAttribute(t, spans[2].Attributes, attrAttemptTimeouts, 0)
		assertAttribute(t, spans[2].Attributes, attrHTTPResponseStatus, 200)
		require.Len(t, spans[2].Events, 1)
		assert.Equal(t, "retry", spans[2].Events[0].Name)
		assertAttribute(t, spans[2].Events[0].Attributes, attrWaitMillis, 1)

		require.Len(t, doer.requests, 2)
		traceparent0 := doer.requests[0].Header.Get("Traceparent")
		traceparent1 := doer.requests[1].Header.Get("Traceparent")
		assert.Contains(t, traceparent0, spans[0].SpanContext.TraceID().String())
		assert.Contains(t, traceparent0, spans[0].SpanContext.SpanID().String())
		assert.Contains(t, traceparent1, spans[1].SpanContext.SpanID().String())
		assert.Empty(t, p.Header.Get("Traceparent"))

		rm := collect(t, reader)
		assert.Equal(t, int64(2), counterTotal(t, &rm, metricAttempts))
		assert.Equal(t, int64(1), counterTotal(t, &rm, metricRetries))
		assert.Equal(t, int64(0), counterTotal(t, &rm, metricAttemptTimeouts))
		m, ok := findMetric(&rm, metricAttempts)
		require.True(t, ok)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok, "expected sum data")
		// The failed and the successful attempt bucket separately.
		require.Len(t, sum.DataPoints, 2)
		for _, dp := range sum.DataPoints {
			assert.Equal(t, int64(1), dp.Value)
			attrs := dp.Attributes.ToSlice()
			assertAttribute(t, attrs, attrHTTPRequestMethod, "GET")
			assertAttribute(t, attrs, attrServerAddress, "test.invalid")
			if hasAttribute(attrs, attrErrorType) {
				assertAttribute(t, attrs, attrErrorType, "other")
			} else {
				assertAttribute(t, attrs, attrHTTPResponseStatus, 200)
			}
		}
		m, ok = findMetric(&rm, metricAttemptDuration)
		require.True(t, ok)
		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "expected histogram data")
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		assert.Equal(t, uint64(2), count)
	})

	t.Run("attempt timeout", func(t *testing.T) {
		o, exporter, reader := setupObserver(t)
		handlers := &retryhttp.HandlerGroup{}
		o.Install(handlers)
		cl := &retryhttp.Client{
			HTTPDoer:      blockingDoer{},
			RetryPolicy:   retry.Never,
			TimeoutPolicy: timeout.Fixed(5 * time.Millisecond),
			Handlers:      handlers,
		}

		e, err := cl.Get("http://test.invalid/widgets")

		require.Error(t, err)
		require.NotNil(t, e)
		assert.True(t, e.Timeout())
		assert.Equal(t, 1, e.AttemptTimeouts)

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		assert.Equal(t, "GET attempt", spans[0].Name)
		assert.Equal(t, "GET", spans[1].Name)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, codes.Error, spans[1].Status.Code)
		assertAttribute(t, spans[1].Attributes, attrAttempts, 1)
		assertAttribute(t, spans[1].Attributes, attrAttemptTimeouts, 1)

		rm := collect(t, reader)
		assert.Equal(t, int64(1), counterTotal(t, &rm, metricAttempts))
		assert.Equal(t, int64(1), counterTotal(t, &rm, metricAttemptTimeouts))
		assert.Equal(t, int64(0), counterTotal(t, &rm, metricRetries))
		m, ok := findMetric(&rm, metricAttempts)
		require.True(t, ok)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok, "expected sum data")
		require.Len(t, sum.DataPoints, 1)
		assertAttribute(t, sum.DataPoints[0].Attributes.ToSlice(), attrErrorType, "timeout")
	})

	t.Run("spans visible to other handlers", func(t *testing.T) {
		o, _, _ := setupObserver(t)
		doer := &scriptDoer{script: []script{respond(200, "ok")}}
		handlers := &retryhttp.HandlerGroup{}
		o.Install(handlers)
		var sawExecution, sawAttempt bool
		handlers.PushBack(retryhttp.BeforeAttempt, retryhttp.HandlerFunc(
			func(_ retryhttp.Event, e *request.Execution) {
				sawExecution = ExecutionSpan(e) != nil
				sawAttempt = AttemptSpan(e) != nil
			}))
		cl := &retryhttp.Client{
			HTTPDoer:    doer,
			RetryPolicy: retry.Never,
			Handlers:    handlers,
		}

		_, err := cl.Get("http://test.invalid/widgets")

		require.NoError(t, err)
		assert.True(t, sawExecution)
		assert.True(t, sawAttempt)
	})

	t.Run("default providers", func(t *testing.T) {
		doer := &scriptDoer{script: []script{respond(200, "ok")}}
		handlers := &retryhttp.HandlerGroup{}
		New().Install(handlers)
		cl := &retryhttp.Client{
			HTTPDoer:    doer,
			RetryPolicy: retry.Never,
			Handlers:    handlers,
		}

		_, err := cl.Get("http://test.invalid/widgets")

		require.NoError(t, err)
		require.Len(t, doer.requests, 1)
		// The default global propagator is a no-op, so no trace context
		// header appears on the request.
		assert.Empty(t, doer.requests[0].Header.Get("Traceparent"))
	})

	t.Run("zero value", func(t *testing.T) {
		p, err := request.NewPlan("GET", "http://test.invalid", nil)
		require.NoError(t, err)
		e := &request.Execution{
			Plan:    p,
			Request: p.ToRequest(context.Background()),
		}
		var o Observer

		assert.NotPanics(t, func() {
			for _, evt := range retryhttp.Events() {
				o.Handle(evt, e)
			}
		})
	})
}

func TestSpanAccessors(t *testing.T) {
	e := &request.Execution{}

	assert.Nil(t, ExecutionSpan(e))
	assert.Nil(t, AttemptSpan(e))
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name     string
		response *http.Response
		err      error
		expected string
	}{
		{
			name: "no outcome",
		},
		{
			name:     "success",
			response: &http.Response{StatusCode: 200},
		},
		{
			name:     "client error status",
			response: &http.Response{StatusCode: 404},
			expected: "404",
		},
		{
			name:     "server error status",
			response: &http.Response{StatusCode: 503},
			expected: "503",
		},
		{
			name:     "timeout",
			err:      &url.Error{Op: "Get", URL: "http://test.invalid", Err: context.DeadlineExceeded},
			expected: "timeout",
		},
		{
			name:     "connection refused",
			err:      &url.Error{Op: "Get", URL: "http://test.invalid", Err: syscall.ECONNREFUSED},
			expected: "connection_refused",
		},
		{
			name:     "connection reset",
			err:      &url.Error{Op: "Get", URL: "http://test.invalid", Err: syscall.ECONNRESET},
			expected: "connection_reset",
		},
		{
			name:     "broken pipe",
			err:      &url.Error{Op: "Get", URL: "http://test.invalid", Err: syscall.EPIPE},
			expected: "broken_pipe",
		},
		{
			name:     "other",
			err:      &url.Error{Op: "Get", URL: "http://test.invalid", Err: errors.New("kaboom")},
			expected: "other",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e := &request.Execution{
				Response: testCase.response,
				Err:      testCase.err,
			}

			assert.Equal(t, testCase.expected, classifyError(e))
		})
	}
}

func setupObserver(t *testing.T) (*Observer, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	o := New(Config{
		TracerProvider: tp,
		MeterProvider:  mp,
		Propagator:     propagation.TraceContext{},
	})
	return o, exporter, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != scopeName {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func counterTotal(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected sum data for %s", name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func assertAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expected any) {
	t.Helper()
	for _, kv := range attrs {
		if string(kv.Key) == key {
			switch want := expected.(type) {
			case int:
				assert.Equal(t, int64(want), kv.Value.AsInt64(), "attribute %s value mismatch", key)
			case string:
				assert.Equal(t, want, kv.Value.AsString(), "attribute %s value mismatch", key)
			default:
				t.Errorf("unsupported expected value type for attribute %s", key)
			}
			return
		}
	}
	t.Errorf("attribute %s not found in %v", key, attrs)
}

func hasAttribute(attrs []attribute.KeyValue, key string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return true
		}
	}
	return false
}

// script is one scripted response in a scriptDoer.
type script func(r *http.Request) (*http.Response, error)

// scriptDoer returns canned responses in order and records the
// requests it receives. If more requests arrive than there are
// scripted responses, the last response repeats.
type scriptDoer struct {
	script   []script
	requests []*http.Request
}

func (d *scriptDoer) Do(r *http.Request) (*http.Response, error) {
	i := len(d.requests)
	d.requests = append(d.requests, r)
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	return d.script[i](r)
}

func respond(status int, body string) script {
	return func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func fail(err error) script {
	return func(_ *http.Request) (*http.Response, error) {
		return nil, err
	}
}

// blockingDoer blocks until the request context ends, then fails with
// the context error.
type blockingDoer struct{}

func (blockingDoer) Do(r *http.Request) (*http.Response, error) {
	<-r.Context().Done()
	return nil, r.Context().Err()
}
