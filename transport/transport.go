// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the [corehttp.Transport] implementations that
// terminate a pipeline: [HTTPTransport], built on the standard library's
// pooled client, and [ConnTransport], a minimal HTTP/1.1 transport over raw
// connections with strict content-length accounting. Both honor the same
// contract — identical error surface, context-aware suspension at every I/O
// point — so pipeline logic never cares which one it runs on; the shared
// test suite in this package enforces that parity.
package transport

import "errors"

// ErrClosed is returned by a transport used after Close.
var ErrClosed = errors.New("transport is closed")
