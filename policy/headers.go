// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"net/http"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// NewHeaderPolicy returns the policy that sets the given headers on every
// outbound request, overwriting values set earlier in the chain.
func NewHeaderPolicy(headers map[string]string) corehttp.Policy {
	return corehttp.PolicyFunc(func(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
		for key, value := range headers {
			req.Raw().Header.Set(key, value)
		}
		return next(ctx, req)
	})
}
