// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// ErrCircuitOpen is returned, wrapped in a *[corehttp.TransportError], when
// the circuit breaker rejects a request without sending it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// errServerStatus marks 5xx responses as failures for the breaker without
// hiding the response from the caller.
var errServerStatus = errors.New("server status counted as circuit failure")

// CircuitBreakerOptions configures [NewCircuitBreakerPolicy].
type CircuitBreakerOptions struct {
	// Name identifies the breaker in state-change notifications. Defaults
	// to "corehttp".
	Name string

	// MaxRequests is how many probe requests may pass while half-open.
	// Defaults to 1.
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	// Zero means counts are never cleared.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to
	// half-open. Defaults to 60s.
	Timeout time.Duration

	// ConsecutiveFailures is how many consecutive failures trip the
	// breaker. Defaults to 5.
	ConsecutiveFailures uint32

	// OnStateChange is notified of breaker transitions.
	OnStateChange func(name string, from, to gobreaker.State)
}

type circuitBreakerPolicy struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

// NewCircuitBreakerPolicy returns a policy that stops sending requests to a
// service that keeps failing, letting it recover instead of hammering it.
// Network errors and 5xx responses count as failures. When the circuit is
// open, requests fail fast with a *[corehttp.TransportError] wrapping
// [ErrCircuitOpen], which the retry policy treats as retryable; compose the
// breaker inside the retry policy so retries can outlast a short open
// window.
func NewCircuitBreakerPolicy(opts *CircuitBreakerOptions) corehttp.Policy {
	if opts == nil {
		opts = &CircuitBreakerOptions{}
	}
	name := opts.Name
	if name == "" {
		name = "corehttp"
	}
	threshold := opts.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: opts.OnStateChange,
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Caller cancellation says nothing about service health.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	}
	return &circuitBreakerPolicy{cb: gobreaker.NewCircuitBreaker[*http.Response](settings)}
}

func (p *circuitBreakerPolicy) Do(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
	resp, err := p.cb.Execute(func() (*http.Response, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, errServerStatus):
		// The breaker counted the failure; the caller still gets the
		// response.
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &corehttp.TransportError{Err: ErrCircuitOpen}
	}
	return resp, err
}
