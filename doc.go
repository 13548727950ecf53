// Copyright 2026 The retryhttp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package retryhttp provides a robust HTTP client with retry support and
other advanced features within a simple and familiar interface.

Create a Client to begin making requests.

	client := &retryhttp.Client{}
	ex, err := client.Get("https://www.example.com")
	...
	ex, err := client.Post("https://www.example.com/upload",
		"application/json", &buf)
	...
	ex, err := client.PostForm("http://example.com/form",
		url.Values{"key": {"Value"}, "id": {"123"}})

For control over how the client sends HTTP requests and receives HTTP
responses, use a custom HTTPDoer. For example, use a GoLang standard
HTTP client:

	doer := &http.Client{
		..., // See package "net/http" for detailed documentation
	}
	client := &retryhttp.Client{
		HTTPDoer: doer,
	}

For control over the client's retry decisions and timing, create a
custom retry policy using components from package retry:

	retryPolicy := retry.NewPolicy(
		retry.Times(5).And(retry.NetworkErr.Or(retry.IdempotentErr)),
		retry.BackoffWaiter)
	client := &retryhttp.Client{
		RetryPolicy: retryPolicy,
	}

For control over the client's individual attempt timeouts, set a custom
timeout policy using package timeout:

	client := &retryhttp.Client{
		TimeoutPolicy: timeout.Fixed(10 * time.Second),
	}

To change policy for an individual request without constructing another
client, set the override fields on its plan:

	p, err := request.NewPlan("PUT", "https://www.example.com/collection/1", body)
	...
	p.RetryWaiter = retry.NewFixedWaiter(250 * time.Millisecond)
	ex, err := client.Do(p)

To hook into the fine-grained details of the client's request execution
logic, install a handler into the appropriate handler chain:

	log := log.New(os.Stdout, "", log.LstdFlags)
	handlers := &retryhttp.HandlerGroup{}
	handlers.PushBack(retryhttp.BeforeAttempt, retryhttp.HandlerFunc(
		func(_ retryhttp.Event, e *request.Execution) {
			log.Printf("Attempt %d to %s", e.Attempt, e.Request.URL.String())
		})
	)
	client := &retryhttp.Client{
		HTTPDoer: doer,
		Handlers: handlers,
	}

Ready-made handlers are available in the subpackages logging (structured
request/retry logs and X-Request-ID stamping, via zerolog) and telemetry
(OpenTelemetry traces and metrics).

Package retryhttp provides basic interfaces for each method of the
robust client (Doer, Getter, Header, Poster, FormPoster, and
IdleCloser); a combined interface that composes all the basic methods
(Executor); and utility functions for working with a Doer (Inflate,
Get, Head, Post, and PostForm).
*/
package retryhttp
