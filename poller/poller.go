// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package poller drives long-running server operations to completion. A
// service starts such an operation by answering the initiating call with
// 201/202 plus a polling location; [New] inspects that response, picks the
// protocol the service speaks (Operation-Location, Azure-AsyncOperation,
// Location, or a provisioning state in the resource body) and returns a
// [Poller] that owns the client-side state machine:
//
//	NotStarted → InProgress → Succeeded | Failed | Canceled
//
// Terminal states are one-way; once reached the poller never polls again.
package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// ErrCanceled is returned by Result after client-side polling was stopped
// with [Poller.Cancel].
var ErrCanceled = errors.New("polling was canceled")

// defaultFrequency is the inter-poll delay used when the service sends no
// Retry-After hint.
const defaultFrequency = 30 * time.Second

// Options configures [New].
type Options struct {
	// Frequency is the delay between polls when the service gives no
	// Retry-After hint. Defaults to 30s.
	Frequency time.Duration

	// Strategy overrides protocol detection.
	Strategy Strategy
}

// Poller tracks one long-running operation. Type parameter T is the shape of
// the operation's final resource.
type Poller[T any] struct {
	pl    corehttp.Pipeline
	strat Strategy
	freq  time.Duration

	mu       sync.Mutex
	last     *http.Response
	canceled bool
	haveRes  bool
	result   T
	resErr   error

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Poller from the response that initiated the operation. The
// pipeline is used for all subsequent polls.
func New[T any](pl corehttp.Pipeline, initial *http.Response, opts *Options) (*Poller[T], error) {
	if initial == nil {
		return nil, errors.New("poller: initial response is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	strat := opts.Strategy
	if strat == nil {
		var err error
		strat, err = newStrategy(initial)
		if err != nil {
			return nil, err
		}
	}
	freq := opts.Frequency
	if freq <= 0 {
		freq = defaultFrequency
	}
	return &Poller[T]{
		pl:    pl,
		strat: strat,
		freq:  freq,
		last:  initial,
		sleep: sleepCtx,
	}, nil
}

// State returns the last observed operation state.
func (p *Poller[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.canceled && !p.strat.State().Terminal() {
		return StateCanceled
	}
	return p.strat.State()
}

// Done reports whether the operation reached a terminal state or polling was
// canceled. It never blocks.
func (p *Poller[T]) Done() bool {
	return p.State().Terminal()
}

// Poll fetches the operation's current status once and advances the state
// machine. It returns the polled response. Calling Poll after a terminal
// state returns the last response without touching the network.
func (p *Poller[T]) Poll(ctx context.Context) (*http.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.strat.State().Terminal() || p.canceled {
		return p.last, nil
	}
	req, err := corehttp.NewRequest(ctx, http.MethodGet, p.strat.PollURL())
	if err != nil {
		return nil, err
	}
	resp, err := p.pl.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !corehttp.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent) {
		return resp, corehttp.NewResponseError(resp)
	}
	if err := p.strat.Update(resp); err != nil {
		return resp, err
	}
	p.last = resp
	return resp, nil
}

// PollUntilDone polls until the operation reaches a terminal state, then
// returns the final result. Between polls it waits for the response's
// Retry-After hint, or the configured frequency when absent; the wait is
// abandoned as soon as ctx is done, so callers are never stuck past their
// deadline.
func (p *Poller[T]) PollUntilDone(ctx context.Context) (T, error) {
	var zero T
	for !p.Done() {
		if _, err := p.Poll(ctx); err != nil {
			return zero, err
		}
		if p.Done() {
			break
		}
		delay := corehttp.RetryAfter(p.lastResponse())
		if delay <= 0 {
			delay = p.freq
		}
		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return p.Result(ctx)
}

// Result returns the operation's final resource. It fails unless the
// operation is done: *[corehttp.PollingFailedError] for Failed or
// server-side Canceled, [ErrCanceled] after client-side cancellation.
// When the protocol names a final resource URL it is fetched through the
// pipeline; otherwise the last polled body is decoded.
func (p *Poller[T]) Result(ctx context.Context) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if p.haveRes {
		return p.result, p.resErr
	}
	state := p.strat.State()
	if !state.Terminal() {
		if p.canceled {
			return zero, ErrCanceled
		}
		return zero, errors.New("poller: operation has not reached a terminal state")
	}
	if state == StateFailed || state == StateCanceled {
		p.haveRes = true
		p.resErr = &corehttp.PollingFailedError{Status: string(state), RawResponse: p.last}
		return zero, p.resErr
	}

	resp := p.last
	if u := p.strat.FinalURL(); u != "" {
		req, err := corehttp.NewRequest(ctx, http.MethodGet, u)
		if err != nil {
			return zero, err
		}
		resp, err = p.pl.Do(ctx, req)
		if err != nil {
			return zero, err
		}
		if !corehttp.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent) {
			return zero, corehttp.NewResponseError(resp)
		}
	}
	body, err := corehttp.Payload(resp)
	if err != nil {
		return zero, err
	}
	var result T
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return zero, &corehttp.DecodeError{Err: err}
		}
	}
	p.haveRes = true
	p.result = result
	return result, nil
}

// Cancel stops client-side polling: Done becomes true, PollUntilDone returns
// and Result reports [ErrCanceled]. It is best effort only: the server
// operation is not contacted and may well run to completion.
func (p *Poller[T]) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = true
}

func (p *Poller[T]) lastResponse() *http.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

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
