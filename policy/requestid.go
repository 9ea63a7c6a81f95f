// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// RequestIDOptions configures [NewRequestIDPolicy].
type RequestIDOptions struct {
	// Header is the header carrying the client-generated id. Defaults to
	// x-ms-client-request-id.
	Header string
}

// NewRequestIDPolicy returns the policy that assigns a fresh UUID to each
// logical request so client and service logs can be correlated. An id
// already set by the caller is left alone. Place it outside the retry policy
// so every attempt of one logical request shares the same id.
func NewRequestIDPolicy(opts *RequestIDOptions) corehttp.Policy {
	header := corehttp.HeaderClientRequestID
	if opts != nil && opts.Header != "" {
		header = opts.Header
	}
	return corehttp.PolicyFunc(func(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
		if req.Raw().Header.Get(header) == "" {
			req.Raw().Header.Set(header, uuid.NewString())
		}
		return next(ctx, req)
	})
}
