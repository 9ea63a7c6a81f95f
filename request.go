// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package corehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Request is the unit of work carried through a [Pipeline]. It wraps an
// *http.Request together with a per-request value bag that policies use to
// pass state to one another (retry counts, safety markers, spans). A Request
// keeps its identity across the whole pipeline traversal; policies mutate its
// headers and body in place.
//
// A Request must not be shared across concurrent Pipeline.Do calls.
type Request struct {
	req    *http.Request
	body   io.ReadSeekCloser
	values map[any]any
}

// NewRequest creates a Request for the given method and URL. The context
// governs the request's lifetime through the whole pipeline.
func NewRequest(ctx context.Context, method, rawURL string) (*Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return &Request{req: req}, nil
}

// Raw returns the underlying *http.Request. Changes to it are visible to
// every policy downstream.
func (r *Request) Raw() *http.Request {
	return r.req
}

// SetBody sets the request body. The body must be seekable so the retry
// policy can rewind it before resending; wrap an in-memory payload with
// [NopCloser]. Passing contentType as the empty string leaves the
// Content-Type header untouched.
func (r *Request) SetBody(body io.ReadSeekCloser, contentType string) error {
	size, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("measure request body: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	r.body = body
	r.req.Body = body
	r.req.ContentLength = size
	r.req.GetBody = func() (io.ReadCloser, error) {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return body, nil
	}
	if contentType != "" {
		r.req.Header.Set("Content-Type", contentType)
	}
	return nil
}

// RewindBody seeks the request body back to its start so the request can be
// sent again. Rewinding a request whose body was attached directly to the
// underlying *http.Request, rather than through [Request.SetBody], fails with
// [ErrBodyNotRewindable]: a partially consumed stream must never be silently
// resent.
func (r *Request) RewindBody() error {
	if r.body == nil {
		if r.req.Body != nil {
			return ErrBodyNotRewindable
		}
		return nil
	}
	_, err := r.body.Seek(0, io.SeekStart)
	return err
}

// SetValue stores a value in the request's bag. The bag is scoped to this
// request only; it is how policies communicate along one traversal.
func (r *Request) SetValue(key, value any) {
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
}

// Value retrieves a value stored with [Request.SetValue].
func (r *Request) Value(key any) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// NopCloser adapts an io.ReadSeeker, such as *bytes.Reader, into the
// io.ReadSeekCloser that [Request.SetBody] requires.
func NopCloser(rs io.ReadSeeker) io.ReadSeekCloser {
	return nopCloser{rs}
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }
