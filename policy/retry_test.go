// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// fakeSleeper records requested delays without waiting.
type fakeSleeper struct {
	delays []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

// scriptedNext returns the scripted outcomes in order and counts invocations.
type scriptedNext struct {
	outcomes []func() (*http.Response, error)
	calls    int
}

func (s *scriptedNext) next(ctx context.Context, req *corehttp.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i]()
}

func respOutcome(status int, headers map[string]string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		resp := &http.Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}
		for k, v := range headers {
			resp.Header.Set(k, v)
		}
		return resp, nil
	}
}

func errOutcome(err error) func() (*http.Response, error) {
	return func() (*http.Response, error) { return nil, err }
}

func newTestRequest(t *testing.T, method string) *corehttp.Request {
	t.Helper()
	req, err := corehttp.NewRequest(t.Context(), method, "https://example.com/widgets")
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	// Fails with a retryable status the first K times; the transport must be
	// invoked exactly K+1 times in total.
	for _, k := range []int{1, 2, 3} {
		sleeper := &fakeSleeper{}
		outcomes := make([]func() (*http.Response, error), 0, k+1)
		for range k {
			outcomes = append(outcomes, respOutcome(http.StatusServiceUnavailable, nil))
		}
		outcomes = append(outcomes, respOutcome(http.StatusOK, nil))
		script := &scriptedNext{outcomes: outcomes}

		p := NewRetryPolicy(&RetryOptions{MaxAttempts: 4, sleep: sleeper.sleep})
		resp, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("k=%d: status = %d, want 200", k, resp.StatusCode)
		}
		if script.calls != k+1 {
			t.Errorf("k=%d: transport invoked %d times, want %d", k, script.calls, k+1)
		}
		if len(sleeper.delays) != k {
			t.Errorf("k=%d: slept %d times, want %d", k, len(sleeper.delays), k)
		}
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusServiceUnavailable, nil),
	}}

	p := NewRetryPolicy(&RetryOptions{MaxAttempts: 3, sleep: sleeper.sleep})
	resp, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want the final 503", resp.StatusCode)
	}
	if script.calls != 3 {
		t.Errorf("transport invoked %d times, want exactly MaxAttempts=3", script.calls)
	}
}

func TestRetryPolicy_TransportErrorRetried(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		errOutcome(&corehttp.TransportError{Err: errors.New("connection reset")}),
		respOutcome(http.StatusOK, nil),
	}}

	p := NewRetryPolicy(&RetryOptions{sleep: sleeper.sleep})
	resp, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if script.calls != 2 {
		t.Errorf("transport invoked %d times, want 2", script.calls)
	}
}

func TestRetryPolicy_NonTransportErrorNotRetried(t *testing.T) {
	sleeper := &fakeSleeper{}
	fatal := errors.New("bug in a policy")
	script := &scriptedNext{outcomes: []func() (*http.Response, error){errOutcome(fatal)}}

	p := NewRetryPolicy(&RetryOptions{sleep: sleeper.sleep})
	if _, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next); !errors.Is(err, fatal) {
		t.Errorf("got %v, want the original error", err)
	}
	if script.calls != 1 {
		t.Errorf("transport invoked %d times, want 1", script.calls)
	}
}

func TestRetryPolicy_AuthenticationErrorNotRetried(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		errOutcome(&corehttp.AuthenticationError{Message: "expired credential"}),
	}}

	p := NewRetryPolicy(&RetryOptions{sleep: sleeper.sleep})
	if _, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next); !errors.Is(err, corehttp.ErrAuthenticationFailed) {
		t.Errorf("got %v, want an authentication error", err)
	}
	if script.calls != 1 {
		t.Errorf("transport invoked %d times, want 1", script.calls)
	}
}

func TestRetryPolicy_RetryAfterOverridesBackoff(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}),
		respOutcome(http.StatusOK, nil),
	}}

	p := NewRetryPolicy(&RetryOptions{Delay: time.Millisecond, DisableJitter: true, sleep: sleeper.sleep})
	if _, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next); err != nil {
		t.Fatal(err)
	}
	want := []time.Duration{7 * time.Second}
	if diff := cmp.Diff(want, sleeper.delays); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusServiceUnavailable, nil),
	}}

	p := NewRetryPolicy(&RetryOptions{
		MaxAttempts:   4,
		Delay:         100 * time.Millisecond,
		DisableJitter: true,
		sleep:         sleeper.sleep,
	})
	if _, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next); err != nil {
		t.Fatal(err)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if diff := cmp.Diff(want, sleeper.delays); diff != "" {
		t.Errorf("backoff mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryPolicy_MaxDelayCapsBackoff(t *testing.T) {
	p := &retryPolicy{opts: (&RetryOptions{
		Delay:         10 * time.Second,
		MaxDelay:      15 * time.Second,
		DisableJitter: true,
	}).withDefaults()}

	if got := p.backoff(4); got != 15*time.Second {
		t.Errorf("backoff(4) = %v, want the 15s cap", got)
	}
}

func TestRetryPolicy_NonIdempotentMethods(t *testing.T) {
	tests := map[string]struct {
		method    string
		opts      RetryOptions
		markSafe  bool
		wantCalls int
	}{
		"POST not retried":                {method: http.MethodPost, wantCalls: 1},
		"PATCH not retried":               {method: http.MethodPatch, wantCalls: 1},
		"PUT retried":                     {method: http.MethodPut, wantCalls: 2},
		"DELETE retried":                  {method: http.MethodDelete, wantCalls: 2},
		"POST with global opt-in":         {method: http.MethodPost, opts: RetryOptions{RetryNonIdempotent: true}, wantCalls: 2},
		"POST with per-request MarkSafe":  {method: http.MethodPost, markSafe: true, wantCalls: 2},
		"PATCH with per-request MarkSafe": {method: http.MethodPatch, markSafe: true, wantCalls: 2},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sleeper := &fakeSleeper{}
			opts := tc.opts
			opts.sleep = sleeper.sleep
			script := &scriptedNext{outcomes: []func() (*http.Response, error){
				respOutcome(http.StatusServiceUnavailable, nil),
				respOutcome(http.StatusOK, nil),
			}}

			req := newTestRequest(t, tc.method)
			if tc.markSafe {
				MarkRetrySafe(req)
			}
			p := NewRetryPolicy(&opts)
			if _, err := p.Do(t.Context(), req, script.next); err != nil {
				t.Fatal(err)
			}
			if script.calls != tc.wantCalls {
				t.Errorf("transport invoked %d times, want %d", script.calls, tc.wantCalls)
			}
		})
	}
}

func TestRetryPolicy_RewindsBodyBetweenAttempts(t *testing.T) {
	sleeper := &fakeSleeper{}
	var bodies []string
	script := &scriptedNext{}
	script.outcomes = []func() (*http.Response, error){
		respOutcome(http.StatusServiceUnavailable, nil),
		respOutcome(http.StatusOK, nil),
	}

	req := newTestRequest(t, http.MethodPut)
	if err := req.SetBody(corehttp.NopCloser(bytes.NewReader([]byte("same bytes"))), "text/plain"); err != nil {
		t.Fatal(err)
	}

	p := NewRetryPolicy(&RetryOptions{sleep: sleeper.sleep})
	next := func(ctx context.Context, r *corehttp.Request) (*http.Response, error) {
		data, err := io.ReadAll(r.Raw().Body)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, string(data))
		return script.next(ctx, r)
	}
	if _, err := p.Do(t.Context(), req, next); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"same bytes", "same bytes"}, bodies); diff != "" {
		t.Errorf("bodies mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryPolicy_NonRewindableBodyStopsRetry(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusServiceUnavailable, nil),
	}}

	req := newTestRequest(t, http.MethodPut)
	req.Raw().Body = io.NopCloser(strings.NewReader("one-shot stream"))

	p := NewRetryPolicy(&RetryOptions{sleep: sleeper.sleep})
	resp, err := p.Do(t.Context(), req, script.next)
	if !errors.Is(err, corehttp.ErrBodyNotRewindable) {
		t.Errorf("got %v, want ErrBodyNotRewindable", err)
	}
	if resp != nil {
		t.Error("a failed rewind must not hand back the drained response")
	}
	if script.calls != 1 {
		t.Errorf("transport invoked %d times, want 1", script.calls)
	}
}

func TestRetryPolicy_CanceledContextStopsRetry(t *testing.T) {
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusServiceUnavailable, nil),
	}}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// The real context-aware sleep must observe cancellation immediately.
	p := NewRetryPolicy(&RetryOptions{Delay: time.Hour})
	req, err := corehttp.NewRequest(ctx, http.MethodGet, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Do(ctx, req, script.next); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if script.calls != 1 {
		t.Errorf("transport invoked %d times, want 1", script.calls)
	}
}

func TestRetryPolicy_TryTimeout(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0
	next := func(ctx context.Context, r *corehttp.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			// Simulate a hung attempt: block until the per-attempt
			// deadline fires.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return respOutcome(http.StatusOK, nil)()
	}

	p := NewRetryPolicy(&RetryOptions{TryTimeout: 10 * time.Millisecond, sleep: sleeper.sleep})
	resp, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), next)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if calls != 2 {
		t.Errorf("transport invoked %d times, want 2 (timeout then success)", calls)
	}
}

func TestRetryPolicy_ShouldRetryOverride(t *testing.T) {
	sleeper := &fakeSleeper{}
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusNotFound, nil), // not retryable by default
		respOutcome(http.StatusOK, nil),
	}}

	p := NewRetryPolicy(&RetryOptions{
		ShouldRetry: func(resp *http.Response, err error) bool {
			return resp != nil && resp.StatusCode == http.StatusNotFound
		},
		sleep: sleeper.sleep,
	})
	resp, err := p.Do(t.Context(), newTestRequest(t, http.MethodGet), script.next)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if script.calls != 2 {
		t.Errorf("transport invoked %d times, want 2", script.calls)
	}
}

func TestRetryAttempt(t *testing.T) {
	req := newTestRequest(t, http.MethodGet)
	if got := RetryAttempt(req); got != 0 {
		t.Errorf("RetryAttempt before the policy runs = %d, want 0", got)
	}

	var seen []int
	script := &scriptedNext{outcomes: []func() (*http.Response, error){
		respOutcome(http.StatusServiceUnavailable, nil),
		respOutcome(http.StatusOK, nil),
	}}
	sleeper := &fakeSleeper{}
	p := NewRetryPolicy(&RetryOptions{sleep: sleeper.sleep})
	next := func(ctx context.Context, r *corehttp.Request) (*http.Response, error) {
		seen = append(seen, RetryAttempt(r))
		return script.next(ctx, r)
	}
	if _, err := p.Do(t.Context(), req, next); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2}, seen); diff != "" {
		t.Errorf("attempt numbers mismatch (-want +got):\n%s", diff)
	}
}
