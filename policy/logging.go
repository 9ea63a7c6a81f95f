// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// defaultAllowedHeaders are logged verbatim; every other header value is
// redacted so credentials and customer data never reach the log sink.
var defaultAllowedHeaders = []string{
	"Accept",
	"Content-Length",
	"Content-Type",
	"Date",
	"Retry-After",
	"User-Agent",
	corehttp.HeaderClientRequestID,
	corehttp.HeaderRequestID,
}

// LogOptions configures [NewLogPolicy].
type LogOptions struct {
	// Logger receives the log records. Defaults to slog.Default().
	Logger *slog.Logger

	// AllowedHeaders extends the default set of headers whose values are
	// logged unredacted.
	AllowedHeaders []string

	// AllowedQueryParams lists query parameters whose values are logged
	// unredacted. All others are redacted.
	AllowedQueryParams []string
}

type logPolicy struct {
	logger         *slog.Logger
	allowedHeaders map[string]struct{}
	allowedQuery   map[string]struct{}
}

// NewLogPolicy returns the policy that writes one structured record per
// attempt on the request leg and one on the response leg. Header and query
// values outside the allowlists are redacted. Place it inside the retry
// policy so individual attempts are visible.
func NewLogPolicy(opts *LogOptions) corehttp.Policy {
	if opts == nil {
		opts = &LogOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &logPolicy{
		logger:         logger,
		allowedHeaders: make(map[string]struct{}),
		allowedQuery:   make(map[string]struct{}),
	}
	for _, h := range defaultAllowedHeaders {
		p.allowedHeaders[strings.ToLower(h)] = struct{}{}
	}
	for _, h := range opts.AllowedHeaders {
		p.allowedHeaders[strings.ToLower(h)] = struct{}{}
	}
	for _, q := range opts.AllowedQueryParams {
		p.allowedQuery[q] = struct{}{}
	}
	return p
}

func (p *logPolicy) Do(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
	p.logger.LogAttrs(ctx, slog.LevelDebug, "http request",
		slog.String("method", req.Raw().Method),
		slog.String("url", p.sanitizeURL(req.Raw().URL)),
		slog.Int("attempt", RetryAttempt(req)),
		slog.Any("headers", p.sanitizeHeaders(req.Raw().Header)),
	)
	start := time.Now()
	resp, err := next(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "http request failed",
			slog.String("method", req.Raw().Method),
			slog.String("url", p.sanitizeURL(req.Raw().URL)),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return nil, err
	}
	p.logger.LogAttrs(ctx, slog.LevelDebug, "http response",
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed),
		slog.String("request_id", resp.Header.Get(corehttp.HeaderRequestID)),
	)
	return resp, nil
}

func (p *logPolicy) sanitizeURL(u *url.URL) string {
	if u.RawQuery == "" {
		return u.String()
	}
	q := u.Query()
	for key, vals := range q {
		if _, ok := p.allowedQuery[key]; ok {
			continue
		}
		for i := range vals {
			vals[i] = "REDACTED"
		}
		q[key] = vals
	}
	redacted := *u
	redacted.RawQuery = q.Encode()
	return redacted.String()
}

func (p *logPolicy) sanitizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key := range h {
		if _, ok := p.allowedHeaders[strings.ToLower(key)]; ok {
			out[key] = h.Get(key)
		} else {
			out[key] = "REDACTED"
		}
	}
	return out
}
