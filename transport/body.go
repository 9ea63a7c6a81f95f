// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// lengthCheckedBody wraps a response body so that a stream cut short of the
// declared Content-Length surfaces as *corehttp.IncompleteBodyError instead
// of a bare EOF, on every transport alike. onDone, when set, is invoked once
// at Close with whether the body was fully consumed.
type lengthCheckedBody struct {
	rc       io.ReadCloser
	expected int64 // -1 when unknown
	read     int64
	sawEOF   bool
	closed   bool
	onDone   func(fullyRead bool)
}

func newLengthCheckedBody(rc io.ReadCloser, expected int64, onDone func(fullyRead bool)) *lengthCheckedBody {
	return &lengthCheckedBody{rc: rc, expected: expected, onDone: onDone}
}

func (b *lengthCheckedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.read += int64(n)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		if b.expected >= 0 && b.read < b.expected {
			return n, &corehttp.IncompleteBodyError{Read: b.read, Expected: b.expected}
		}
		b.sawEOF = true
		return n, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, &corehttp.IncompleteBodyError{Read: b.read, Expected: b.expected}
	default:
		return n, err
	}
}

func (b *lengthCheckedBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.rc.Close()
	if b.onDone != nil {
		b.onDone(b.sawEOF || b.expected == 0 || (b.expected > 0 && b.read >= b.expected))
	}
	return err
}
