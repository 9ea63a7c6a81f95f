// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth provides [corehttp.TokenCredential] implementations. The
// pipeline's bearer token policy consumes the interface and nothing else;
// any identity system can plug in by implementing it.
package auth

import (
	"context"
	"time"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// StaticTokenCredential returns a fixed, caller-supplied token. Useful for
// tests and for services fronted by API gateways that hand out opaque keys.
type StaticTokenCredential struct {
	token corehttp.AccessToken
}

var _ corehttp.TokenCredential = StaticTokenCredential{}

// NewStaticTokenCredential creates a credential that always returns token.
// A zero expiresOn means the token never expires.
func NewStaticTokenCredential(token string, expiresOn time.Time) StaticTokenCredential {
	return StaticTokenCredential{token: corehttp.AccessToken{Token: token, ExpiresOn: expiresOn}}
}

// GetToken implements [corehttp.TokenCredential].
func (c StaticTokenCredential) GetToken(ctx context.Context, scopes []string) (corehttp.AccessToken, error) {
	return c.token, nil
}

// CredentialFunc adapts a function to [corehttp.TokenCredential].
type CredentialFunc func(ctx context.Context, scopes []string) (corehttp.AccessToken, error)

var _ corehttp.TokenCredential = CredentialFunc(nil)

// GetToken implements [corehttp.TokenCredential].
func (f CredentialFunc) GetToken(ctx context.Context, scopes []string) (corehttp.AccessToken, error) {
	return f(ctx, scopes)
}
