// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package corehttp

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-corehttp/corehttp-go/internal/pool"
)

// RetryAfter returns the backoff hint carried by resp, preferring the
// millisecond-precision Retry-After-Ms and x-ms-retry-after-ms headers over
// Retry-After, which may hold either a second count or an HTTP date. It
// returns 0 when resp carries no usable hint.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	for _, h := range []string{HeaderRetryAfterMs, HeaderXMSRetryAfterMs} {
		if v := resp.Header.Get(h); v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
			return time.Duration(sec) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return 0
}

// HasStatusCode reports whether resp has one of the given status codes.
func HasStatusCode(resp *http.Response, codes ...int) bool {
	if resp == nil {
		return false
	}
	for _, code := range codes {
		if resp.StatusCode == code {
			return true
		}
	}
	return false
}

// payloadBody replaces a fully downloaded response body so it can be read
// again by later consumers (error construction, decoding, pollers).
type payloadBody struct {
	data []byte
	*bytes.Reader
}

func (*payloadBody) Close() error { return nil }

// Payload downloads the full response body, swaps in a rereadable in-memory
// copy, and returns the bytes. A body shorter than the declared
// Content-Length is reported as *[IncompleteBodyError], never silently
// truncated. Calling Payload again returns the same bytes without touching
// the network.
func Payload(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	if pb, ok := resp.Body.(*payloadBody); ok {
		return pb.data, nil
	}
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)
	_, err := buf.ReadFrom(resp.Body)
	resp.Body.Close()
	read := int64(buf.Len())
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, &IncompleteBodyError{Read: read, Expected: resp.ContentLength}
	case err != nil:
		var incomplete *IncompleteBodyError
		if errors.As(err, &incomplete) {
			return nil, incomplete
		}
		return nil, &TransportError{Err: err}
	case resp.ContentLength >= 0 && read < resp.ContentLength:
		return nil, &IncompleteBodyError{Read: read, Expected: resp.ContentLength}
	}
	data := bytes.Clone(buf.Bytes())
	resp.Body = &payloadBody{data: data, Reader: bytes.NewReader(data)}
	return data, nil
}

// Drain discards and closes the response body so the underlying connection
// can be reclaimed by the transport's pool. Safe to call with a nil response.
func Drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}
}
