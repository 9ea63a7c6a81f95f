// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// Default retry configuration.
const (
	defaultMaxAttempts = 4
	defaultRetryDelay  = 800 * time.Millisecond
	defaultMaxDelay    = 60 * time.Second
)

// defaultStatusCodes are the statuses considered transient.
var defaultStatusCodes = []int{
	http.StatusRequestTimeout,      // 408
	http.StatusTooManyRequests,     // 429
	http.StatusInternalServerError, // 500
	http.StatusBadGateway,          // 502
	http.StatusServiceUnavailable,  // 503
	http.StatusGatewayTimeout,      // 504
}

// RetryOptions configures [NewRetryPolicy]. The zero value (or nil) selects
// the defaults documented on each field.
type RetryOptions struct {
	// MaxAttempts is the total number of times a request is sent before the
	// last outcome is returned. Must be at least 1. Defaults to 4, i.e. one
	// initial attempt and up to three retries.
	MaxAttempts int

	// Delay is the base for exponential backoff between attempts:
	// min(MaxDelay, Delay * 2^(attempt-1)), plus jitter unless disabled.
	// A Retry-After hint on the response overrides the computed delay.
	// Defaults to 800ms.
	Delay time.Duration

	// MaxDelay caps the computed backoff. Defaults to 60s.
	MaxDelay time.Duration

	// TryTimeout bounds each individual attempt. Zero means attempts are
	// bounded only by the request context. An attempt that times out while
	// the request context is still live counts as a transient failure.
	TryTimeout time.Duration

	// StatusCodes lists the HTTP statuses that trigger a retry. Defaults to
	// 408, 429, 500, 502, 503 and 504.
	StatusCodes []int

	// ShouldRetry, when set, replaces the default classification of an
	// attempt's outcome. Exactly one of resp and err is non-nil. The
	// idempotency guard below still applies.
	ShouldRetry func(resp *http.Response, err error) bool

	// RetryNonIdempotent permits retrying POST and PATCH requests. By
	// default those methods are never resent, because the service may have
	// applied the first attempt; retry safety is an explicit decision, not
	// an inference. Individual requests can opt in with [MarkRetrySafe].
	RetryNonIdempotent bool

	// DisableJitter makes the backoff sequence deterministic.
	DisableJitter bool

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (o *RetryOptions) withDefaults() RetryOptions {
	out := RetryOptions{}
	if o != nil {
		out = *o
	}
	if out.MaxAttempts < 1 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.Delay <= 0 {
		out.Delay = defaultRetryDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = defaultMaxDelay
	}
	if out.StatusCodes == nil {
		out.StatusCodes = defaultStatusCodes
	}
	if out.sleep == nil {
		out.sleep = sleepCtx
	}
	return out
}

type retryPolicy struct {
	opts RetryOptions
}

// NewRetryPolicy returns the policy that resends requests on transient
// failures. It is the only policy permitted to invoke the rest of the
// pipeline more than once; place it before any policy whose work must happen
// on every attempt.
func NewRetryPolicy(opts *RetryOptions) corehttp.Policy {
	return &retryPolicy{opts: opts.withDefaults()}
}

func (p *retryPolicy) Do(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			// A partially consumed stream must never be silently resent,
			// and the previous attempt's drained response is useless to
			// the caller.
			if rwErr := req.RewindBody(); rwErr != nil {
				return nil, rwErr
			}
		}
		req.SetValue(retryAttemptKey{}, attempt)
		resp, err = p.tryOnce(ctx, req, next)
		if !p.retryable(req, resp, err) {
			return resp, err
		}
		if attempt >= p.opts.MaxAttempts {
			return resp, err
		}
		delay := corehttp.RetryAfter(resp)
		if delay <= 0 {
			delay = p.backoff(attempt)
		}
		corehttp.Drain(resp)
		if sleepErr := p.opts.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

// tryOnce runs a single attempt, applying the per-attempt timeout. The
// attempt's context must outlive the response body, so on success its cancel
// is deferred to the body's Close.
func (p *retryPolicy) tryOnce(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
	if p.opts.TryTimeout <= 0 {
		return next(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.opts.TryTimeout)
	resp, err := next(attemptCtx, req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &corehttp.TransportError{Err: fmt.Errorf("attempt timed out after %s", p.opts.TryTimeout)}
		}
		return nil, err
	}
	resp.Body = cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func (p *retryPolicy) retryable(req *corehttp.Request, resp *http.Response, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var authErr *corehttp.AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	if !p.opts.RetryNonIdempotent && !retrySafe(req) {
		switch req.Raw().Method {
		case http.MethodPost, http.MethodPatch:
			return false
		}
	}
	if p.opts.ShouldRetry != nil {
		return p.opts.ShouldRetry(resp, err)
	}
	if err != nil {
		var transportErr *corehttp.TransportError
		return errors.As(err, &transportErr)
	}
	return corehttp.HasStatusCode(resp, p.opts.StatusCodes...)
}

func (p *retryPolicy) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(p.opts.Delay) * math.Pow(2, float64(attempt-1)))
	if delay > p.opts.MaxDelay || delay <= 0 {
		delay = p.opts.MaxDelay
	}
	if !p.opts.DisableJitter {
		// Up to 10% extra, mirroring the service guidance for smearing
		// synchronized clients.
		delay += time.Duration(rand.Float64() * float64(delay) * 0.1)
		if delay > p.opts.MaxDelay {
			delay = p.opts.MaxDelay
		}
	}
	return delay
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type (
	retryAttemptKey struct{}
	retrySafeKey    struct{}
)

// MarkRetrySafe marks a single non-idempotent request (POST, PATCH) as safe
// to resend, e.g. because it carries an idempotency key.
func MarkRetrySafe(req *corehttp.Request) {
	req.SetValue(retrySafeKey{}, true)
}

func retrySafe(req *corehttp.Request) bool {
	v, ok := req.Value(retrySafeKey{})
	return ok && v == true
}

// RetryAttempt reports which attempt, starting at 1, delivered the request
// currently traversing the pipeline. It returns 0 before the retry policy
// has run, or when no retry policy is registered.
func RetryAttempt(req *corehttp.Request) int {
	if v, ok := req.Value(retryAttemptKey{}); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
