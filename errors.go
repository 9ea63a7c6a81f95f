// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package corehttp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json"

	"github.com/go-corehttp/corehttp-go/internal/pool"
)

// Sentinels for classifying errors with errors.Is. A *[ResponseError] matches
// the first three based on its status code, so callers never switch on raw
// status codes themselves.
var (
	// ErrResourceNotFound matches responses with status 404.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrResourceExists matches responses with status 409.
	ErrResourceExists = errors.New("resource already exists")

	// ErrAuthenticationFailed matches responses with status 401 or 403, and
	// every *AuthenticationError.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBodyNotRewindable is returned when a request must be resent but its
	// body was not set through Request.SetBody and cannot be replayed.
	ErrBodyNotRewindable = errors.New("request body is not rewindable; set it with Request.SetBody")
)

// TransportError reports a network-level failure: connection refused, DNS or
// TLS failure, or a broken round trip. Transport errors are eligible for
// retry per the retry policy's configuration.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorBodyLimit bounds how much of a failed response's body is retained on
// the error.
const errorBodyLimit = 4096

// ResponseError is returned when the service answers with an unexpected
// status code, after any retries are exhausted. It carries enough context to
// be actionable without re-running with verbose logging.
type ResponseError struct {
	// StatusCode is the HTTP status of the failed response.
	StatusCode int
	// ErrorCode is the service's error code, parsed from the conventional
	// {"error": {"code": ...}} body shape when present.
	ErrorCode string
	// RequestID echoes the x-ms-request-id header when present.
	RequestID string
	// Body holds the response body, truncated to a bounded size.
	Body []byte
	// RawResponse is the response that produced this error.
	RawResponse *http.Response
}

// NewResponseError builds a *ResponseError from resp, downloading and
// retaining a bounded copy of the body.
func NewResponseError(resp *http.Response) error {
	e := &ResponseError{
		StatusCode:  resp.StatusCode,
		RequestID:   resp.Header.Get(HeaderRequestID),
		RawResponse: resp,
	}
	body, err := Payload(resp)
	if err != nil || len(body) == 0 {
		return e
	}
	e.Body = body
	if len(e.Body) > errorBodyLimit {
		e.Body = e.Body[:errorBodyLimit]
	}
	var doc struct {
		Code  string `json:"code"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err == nil {
		e.ErrorCode = doc.Error.Code
		if e.ErrorCode == "" {
			e.ErrorCode = doc.Code
		}
	}
	return e
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	sb := pool.String.Get()
	defer pool.String.Put(sb)
	fmt.Fprintf(sb, "request failed with status %d", e.StatusCode)
	if e.ErrorCode != "" {
		fmt.Fprintf(sb, " (code %q)", e.ErrorCode)
	}
	if e.RequestID != "" {
		fmt.Fprintf(sb, ", request id %s", e.RequestID)
	}
	if len(e.Body) > 0 {
		sb.WriteString(": ")
		sb.Write(e.Body)
	}
	return sb.String()
}

// Is matches the classification sentinels against the status code.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrResourceNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrResourceExists:
		return e.StatusCode == http.StatusConflict
	case ErrAuthenticationFailed:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// AuthenticationError reports a failure to acquire a token from a credential.
// It is distinct from transport and HTTP-status errors and is never retried
// by the generic retry policy.
type AuthenticationError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return "authentication failed: " + e.Message
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is reports a match for [ErrAuthenticationFailed].
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

// IncompleteBodyError reports a response body that ended before the declared
// Content-Length was delivered.
type IncompleteBodyError struct {
	// Read is how many body bytes arrived.
	Read int64
	// Expected is the declared Content-Length.
	Expected int64
}

// Error implements the error interface.
func (e *IncompleteBodyError) Error() string {
	return fmt.Sprintf("incomplete response body: read %d of %d bytes", e.Read, e.Expected)
}

// PollingFailedError is returned when a long-running operation reaches the
// Failed or Canceled terminal state.
type PollingFailedError struct {
	// Status is the terminal status reported by the service.
	Status string
	// RawResponse is the last polled response.
	RawResponse *http.Response
}

// Error implements the error interface.
func (e *PollingFailedError) Error() string {
	return fmt.Sprintf("long-running operation terminated with status %q", e.Status)
}

// DecodeError reports a response body that did not match the expected
// schema. It is surfaced distinctly from transport and HTTP errors so
// callers can tell "the server said no" from "we could not parse yes".
type DecodeError struct {
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
	}
	return "validation error: " + e.Message
}
