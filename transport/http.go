// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// Options configures [NewHTTPTransport]. The zero value (or nil) selects the
// defaults documented on each field.
type Options struct {
	// ConnectionTimeout bounds dialing, including TLS handshake.
	// Defaults to 10s.
	ConnectionTimeout time.Duration

	// ReadTimeout bounds the wait for response headers after the request is
	// fully written. Defaults to 60s. Body reads are governed by the
	// request context, not this timeout.
	ReadTimeout time.Duration

	// IdleConnTimeout is how long pooled connections stay open unused.
	// Defaults to 90s.
	IdleConnTimeout time.Duration

	// MaxIdleConns caps the pool size across all hosts. Defaults to 100.
	MaxIdleConns int

	// MaxConnsPerHost caps concurrent connections to one host. Defaults
	// to 10.
	MaxConnsPerHost int

	// TLSConfig overrides the TLS client configuration.
	TLSConfig *tls.Config

	// DisableCompression turns off transparent gzip.
	DisableCompression bool
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.ConnectionTimeout <= 0 {
		out.ConnectionTimeout = 10 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 60 * time.Second
	}
	if out.IdleConnTimeout <= 0 {
		out.IdleConnTimeout = 90 * time.Second
	}
	if out.MaxIdleConns <= 0 {
		out.MaxIdleConns = 100
	}
	if out.MaxConnsPerHost <= 0 {
		out.MaxConnsPerHost = 10
	}
	return out
}

// HTTPTransport terminates a pipeline with the standard library's pooled
// HTTP client. One instance may serve many concurrent requests; Close
// releases the pool's idle connections.
type HTTPTransport struct {
	client *http.Client
	inner  *http.Transport
	closed atomic.Bool
}

var _ corehttp.Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an [HTTPTransport]. Pass nil for defaults.
func NewHTTPTransport(opts *Options) *HTTPTransport {
	o := opts.withDefaults()
	inner := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: o.ConnectionTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   o.ConnectionTimeout,
		ResponseHeaderTimeout: o.ReadTimeout,
		IdleConnTimeout:       o.IdleConnTimeout,
		MaxIdleConns:          o.MaxIdleConns,
		MaxConnsPerHost:       o.MaxConnsPerHost,
		TLSClientConfig:       o.TLSConfig,
		DisableCompression:    o.DisableCompression,
		ForceAttemptHTTP2:     true,
	}
	return &HTTPTransport{
		client: &http.Client{
			Transport: inner,
			// Redirect and retry decisions belong to pipeline policies.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		inner: inner,
	}
}

// Do implements [corehttp.Transport].
func (t *HTTPTransport) Do(ctx context.Context, req *corehttp.Request) (*http.Response, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	resp, err := t.client.Do(req.Raw().Clone(ctx))
	if err != nil {
		// Caller cancellation is not a transport failure.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &corehttp.TransportError{Err: err}
	}
	resp.Body = newLengthCheckedBody(resp.Body, resp.ContentLength, nil)
	return resp, nil
}

// Close implements [corehttp.Transport]. In-flight requests are unaffected;
// their connections are released when their bodies are closed.
func (t *HTTPTransport) Close() error {
	t.closed.Store(true)
	t.inner.CloseIdleConnections()
	return nil
}
