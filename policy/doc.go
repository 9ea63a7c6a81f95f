// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy provides the built-in pipeline policies: retry with
// exponential backoff, bearer token authentication, structured logging,
// request ids, telemetry headers, distributed tracing and a circuit breaker.
//
// Policies are ordinary [corehttp.Policy] values composed with
// [corehttp.NewPipeline]. Order matters: policies that must run once per
// logical request (request id, user agent) go before the retry policy, and
// policies that must run on every attempt (authentication, logging, tracing)
// go after it.
//
//	pl := corehttp.NewPipeline(tr,
//		policy.NewRequestIDPolicy(nil),
//		policy.NewUserAgentPolicy("myapp/2.1"),
//		policy.NewRetryPolicy(&policy.RetryOptions{MaxAttempts: 5}),
//		policy.NewBearerTokenPolicy(cred, scopes, nil),
//		policy.NewLogPolicy(nil),
//	)
package policy
