// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package corehttp provides the shared HTTP runtime used by generated cloud
// service clients: a composable request pipeline of policies terminated by a
// pluggable transport, plus the building blocks those policies share.
//
// A [Pipeline] executes a [Request] through an ordered chain of [Policy]
// values. Policies run in registration order on the way out and in exact
// reverse order on the way back, the classic middleware onion. The innermost
// link is always a [Transport], which performs the network round trip.
//
// # Assembling a pipeline
//
//	tr := transport.NewHTTPTransport(nil)
//	pl := corehttp.NewPipeline(tr,
//		policy.NewRequestIDPolicy(nil),
//		policy.NewRetryPolicy(nil),
//		policy.NewBearerTokenPolicy(cred, []string{"https://service/.default"}, nil),
//	)
//
//	req, err := corehttp.NewRequest(ctx, http.MethodGet, "https://service/items")
//	if err != nil {
//		log.Fatal(err)
//	}
//	resp, err := pl.Do(ctx, req)
//
// Most callers do not assemble pipelines by hand; the client package builds
// one from a standard set of options.
//
// # Errors
//
// Failures are reported through a small taxonomy so callers can tell "the
// network broke" from "the server said no" from "we could not parse yes":
// [TransportError], [ResponseError], [AuthenticationError],
// [IncompleteBodyError], [PollingFailedError] and [DecodeError]. All of them
// work with errors.Is and errors.As, and [ResponseError] additionally matches
// the [ErrResourceNotFound], [ErrResourceExists] and [ErrAuthenticationFailed]
// sentinels.
//
// # Cancellation
//
// Every suspension point in the runtime (transport I/O, retry backoff, poll
// waits, token fetches) honors the deadline and cancellation of the context
// passed to it. Abandoning an in-flight request does not roll back
// server-side effects; a request that succeeded on the server but whose
// response was never read still happened.
package corehttp
