// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// NewTracingPolicy returns the policy that wraps each attempt in a client
// span on the given tracer. A nil tracer yields a pass-through policy, so
// callers can wire the option unconditionally.
func NewTracingPolicy(tracer trace.Tracer) corehttp.Policy {
	return corehttp.PolicyFunc(func(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
		if tracer == nil {
			return next(ctx, req)
		}
		ctx, span := tracer.Start(ctx, "HTTP "+req.Raw().Method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Raw().Method),
				attribute.String("url.full", req.Raw().URL.String()),
			),
		)
		defer span.End()

		resp, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, resp.Status)
		}
		return resp, nil
	})
}
