// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/birchlake/retryhttp"
	"github.com/birchlake/retryhttp/request"
	"github.com/birchlake/retryhttp/retry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	t.Run("generates one identifier per execution", func(t *testing.T) {
		doer := &scriptDoer{script: []script{
			fail(errors.New("kaboom")),
			respond(200, "ok"),
		}}
		handlers := &retryhttp.HandlerGroup{}
		(&RequestID{}).Install(handlers)
		cl := &retryhttp.Client{
			HTTPDoer: doer,
			RetryPolicy: retry.NewPolicy(
				retry.Times(1).And(retry.NetworkErr),
				retry.NewFixedWaiter(0)),
			Handlers: handlers,
		}

		e, err := cl.Get("http://test.invalid/widgets")

		require.NoError(t, err)
		require.Len(t, doer.requests, 2)
		id := doer.requests[0].Header.Get(HeaderXRequestID)
		_, err = uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, doer.requests[1].Header.Get(HeaderXRequestID))
		assert.Equal(t, id, ID(e))
		assert.Empty(t, e.Plan.Header.Get(HeaderXRequestID))

		e2, err := cl.Get("http://test.invalid/widgets")

		require.NoError(t, err)
		assert.NotEmpty(t, ID(e2))
		assert.NotEqual(t, id, ID(e2))
	})

	t.Run("keeps the plan identifier", func(t *testing.T) {
		doer := &scriptDoer{script: []script{respond(200, "ok")}}
		handlers := &retryhttp.HandlerGroup{}
		(&RequestID{}).Install(handlers)
		cl := &retryhttp.Client{
			HTTPDoer:    doer,
			RetryPolicy: retry.Never,
			Handlers:    handlers,
		}
		p, err := request.NewPlan("GET", "http://test.invalid/widgets", nil)
		require.NoError(t, err)
		p.Header.Set(HeaderXRequestID, "caller-7")

		e, err := cl.Do(p)

		require.NoError(t, err)
		require.Len(t, doer.requests, 1)
		assert.Equal(t, "caller-7", doer.requests[0].Header.Get(HeaderXRequestID))
		assert.Equal(t, "caller-7", ID(e))
	})

	t.Run("custom header and generator", func(t *testing.T) {
		doer := &scriptDoer{script: []script{respond(200, "ok")}}
		handlers := &retryhttp.HandlerGroup{}
		id := &RequestID{
			Header: "X-Correlation-ID",
			NewID:  func() string { return "corr-1" },
		}
		id.Install(handlers)
		cl := &retryhttp.Client{
			HTTPDoer:    doer,
			RetryPolicy: retry.Never,
			Handlers:    handlers,
		}

		_, err := cl.Get("http://test.invalid/widgets")

		require.NoError(t, err)
		require.Len(t, doer.requests, 1)
		assert.Equal(t, "corr-1", doer.requests[0].Header.Get("X-Correlation-ID"))
		assert.Empty(t, doer.requests[0].Header.Get(HeaderXRequestID))
	})

	t.Run("no identifier without execution start", func(t *testing.T) {
		p, err := request.NewPlan("GET", "http://test.invalid/widgets", nil)
		require.NoError(t, err)
		e := &request.Execution{
			Plan:    p,
			Request: p.ToRequest(context.Background()),
		}
		id := &RequestID{}

		id.Handle(retryhttp.BeforeAttempt, e)

		assert.Empty(t, e.Request.Header.Get(HeaderXRequestID))
		assert.Empty(t, ID(e))
	})
}
