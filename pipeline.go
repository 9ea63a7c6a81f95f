// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package corehttp

import (
	"context"
	"errors"
	"net/http"
)

// Next invokes the remainder of the pipeline: every policy registered after
// the current one, then the transport.
type Next func(ctx context.Context, req *Request) (*http.Response, error)

// A Policy observes or mutates a request on its way to the transport and the
// response on the way back. Policies run in registration order outbound and
// exact reverse order inbound. A policy may short-circuit by returning a
// response without calling next; only a retry policy may call next more than
// once.
type Policy interface {
	Do(ctx context.Context, req *Request, next Next) (*http.Response, error)
}

// PolicyFunc adapts a plain function to the [Policy] interface.
type PolicyFunc func(ctx context.Context, req *Request, next Next) (*http.Response, error)

// Do implements [Policy].
func (f PolicyFunc) Do(ctx context.Context, req *Request, next Next) (*http.Response, error) {
	return f(ctx, req, next)
}

// Transport performs the HTTP round trip at the end of a pipeline. A
// Transport instance and its connection pool may be shared by many concurrent
// requests; Close releases pooled connections regardless of in-flight
// request outcomes.
type Transport interface {
	Do(ctx context.Context, req *Request) (*http.Response, error)
	Close() error
}

// Pipeline is an ordered chain of policies terminated by a transport. The
// zero value is unusable; construct one with [NewPipeline]. A Pipeline is
// immutable after construction and safe for concurrent use.
type Pipeline struct {
	run Next
}

// NewPipeline composes policies around a terminal transport. The first
// policy in the list is the outermost layer of the onion.
func NewPipeline(transport Transport, policies ...Policy) Pipeline {
	run := func(ctx context.Context, req *Request) (*http.Response, error) {
		return transport.Do(ctx, req)
	}
	// Build right to left so registration order is outbound order.
	for i := len(policies) - 1; i >= 0; i-- {
		p := policies[i]
		next := run
		run = func(ctx context.Context, req *Request) (*http.Response, error) {
			return p.Do(ctx, req, next)
		}
	}
	return Pipeline{run: run}
}

// Do sends req through the policy chain and returns the final response.
// Network-level errors from the transport propagate unchanged to the nearest
// retry policy, or to the caller when none is registered.
func (p Pipeline) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if p.run == nil {
		return nil, errors.New("corehttp: pipeline has no transport")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.run(ctx, req)
}
