// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// JWTCredential presents a caller-supplied signed JWT as a bearer token,
// deriving the token's expiry from its exp claim so the bearer token policy
// can cache it correctly. The token is not verified here; verification is
// the service's job, this credential only needs the lifetime.
type JWTCredential struct {
	raw       string
	expiresOn time.Time
}

var _ corehttp.TokenCredential = (*JWTCredential)(nil)

// NewJWTCredential parses raw as a JWT and returns a credential for it.
func NewJWTCredential(raw string) (*JWTCredential, error) {
	tok, err := jwt.ParseString(raw, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, &corehttp.AuthenticationError{Message: "parse JWT", Err: err}
	}
	var expiresOn time.Time
	if exp, ok := tok.Expiration(); ok && !exp.IsZero() {
		expiresOn = exp
	}
	return &JWTCredential{raw: raw, expiresOn: expiresOn}, nil
}

// GetToken implements [corehttp.TokenCredential]. It fails once the token's
// exp claim has passed; a fresh JWT requires a fresh credential.
func (c *JWTCredential) GetToken(ctx context.Context, scopes []string) (corehttp.AccessToken, error) {
	if !c.expiresOn.IsZero() && time.Now().After(c.expiresOn) {
		return corehttp.AccessToken{}, &corehttp.AuthenticationError{Message: "JWT is expired"}
	}
	return corehttp.AccessToken{Token: c.raw, ExpiresOn: c.expiresOn}, nil
}
