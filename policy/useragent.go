// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"fmt"
	"net/http"
	"runtime"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// NewUserAgentPolicy returns the policy that stamps the module's telemetry
// string onto the User-Agent header. applicationID, when non-empty, is
// prefixed so services can attribute traffic to the calling application. A
// User-Agent already present on the request is preserved as a suffix.
func NewUserAgentPolicy(applicationID string) corehttp.Policy {
	ua := fmt.Sprintf("corehttp-go/%s (%s; %s; %s)", corehttp.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if applicationID != "" {
		ua = applicationID + " " + ua
	}
	return corehttp.PolicyFunc(func(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
		value := ua
		if existing := req.Raw().Header.Get(corehttp.HeaderUserAgent); existing != "" {
			value = value + " " + existing
		}
		req.Raw().Header.Set(corehttp.HeaderUserAgent, value)
		return next(ctx, req)
	})
}
