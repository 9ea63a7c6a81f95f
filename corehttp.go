// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package corehttp

import (
	"context"
	"time"
)

// Version is the semantic version of this module, reported in the default
// User-Agent string.
const Version = "0.1.0"

// Header names with conventional meaning to the pipeline and its policies.
const (
	HeaderAuthorization       = "Authorization"
	HeaderLocation            = "Location"
	HeaderOperationLocation   = "Operation-Location"
	HeaderAzureAsyncOperation = "Azure-AsyncOperation"
	HeaderRetryAfter          = "Retry-After"
	HeaderRetryAfterMs        = "Retry-After-Ms"
	HeaderXMSRetryAfterMs     = "x-ms-retry-after-ms"
	HeaderClientRequestID     = "x-ms-client-request-id"
	HeaderRequestID           = "x-ms-request-id"
	HeaderUserAgent           = "User-Agent"
)

// AccessToken is a bearer token together with its expiry.
type AccessToken struct {
	// Token is the opaque token value placed in the Authorization header.
	Token string
	// ExpiresOn is when the token stops being accepted. A zero value means
	// the token never expires.
	ExpiresOn time.Time
}

// TokenCredential is anything able to produce a bearer token for a set of
// scopes. Implementations live in the auth package; the bearer token policy
// consumes this interface and nothing else from the identity layer.
//
// GetToken must be safe for concurrent use. The pipeline's bearer token
// policy caches tokens and coalesces refreshes, so implementations do not
// need their own caching.
type TokenCredential interface {
	GetToken(ctx context.Context, scopes []string) (AccessToken, error)
}
