// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"net/http"
	"sync"
	"time"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// defaultRefreshWindow is how long before expiry a cached token is treated
// as stale.
const defaultRefreshWindow = 2 * time.Minute

// BearerTokenOptions configures [NewBearerTokenPolicy].
type BearerTokenOptions struct {
	// RefreshWindow is how long before its expiry a cached token is
	// refreshed. Defaults to 2 minutes.
	RefreshWindow time.Duration
}

type bearerTokenPolicy struct {
	cred   corehttp.TokenCredential
	scopes []string
	window time.Duration

	// tokenMu guards token; refreshMu serializes fetches so concurrent
	// callers that observe a stale token coalesce into one GetToken call
	// instead of stampeding the credential.
	tokenMu   sync.RWMutex
	refreshMu sync.Mutex
	token     corehttp.AccessToken
}

// NewBearerTokenPolicy returns the policy that attaches
// "Authorization: Bearer <token>" to every outbound request, caching the
// credential's token until it approaches expiry. Token acquisition failures
// surface as *[corehttp.AuthenticationError] and are not retried by
// [NewRetryPolicy]; any retry of acquisition itself (such as a clock-skew
// retry) belongs inside the credential.
func NewBearerTokenPolicy(cred corehttp.TokenCredential, scopes []string, opts *BearerTokenOptions) corehttp.Policy {
	window := defaultRefreshWindow
	if opts != nil && opts.RefreshWindow > 0 {
		window = opts.RefreshWindow
	}
	return &bearerTokenPolicy{
		cred:   cred,
		scopes: scopes,
		window: window,
	}
}

func (p *bearerTokenPolicy) Do(ctx context.Context, req *corehttp.Request, next corehttp.Next) (*http.Response, error) {
	tok, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	req.Raw().Header.Set(corehttp.HeaderAuthorization, "Bearer "+tok)
	return next(ctx, req)
}

func (p *bearerTokenPolicy) get(ctx context.Context) (string, error) {
	p.tokenMu.RLock()
	tok := p.token
	p.tokenMu.RUnlock()
	if p.fresh(tok) {
		return tok.Token, nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	p.tokenMu.RLock()
	tok = p.token
	p.tokenMu.RUnlock()
	if p.fresh(tok) {
		return tok.Token, nil
	}

	newTok, err := p.cred.GetToken(ctx, p.scopes)
	if err != nil {
		return "", &corehttp.AuthenticationError{Message: "acquire bearer token", Err: err}
	}
	if newTok.Token == "" {
		return "", &corehttp.AuthenticationError{Message: "credential returned an empty token"}
	}
	p.tokenMu.Lock()
	p.token = newTok
	p.tokenMu.Unlock()
	return newTok.Token, nil
}

func (p *bearerTokenPolicy) fresh(tok corehttp.AccessToken) bool {
	if tok.Token == "" {
		return false
	}
	if tok.ExpiresOn.IsZero() {
		return true
	}
	return time.Until(tok.ExpiresOn) > p.window
}
