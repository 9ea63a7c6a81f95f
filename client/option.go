// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	corehttp "github.com/go-corehttp/corehttp-go"
	"github.com/go-corehttp/corehttp-go/policy"
)

// Option configures a [Client].
type Option func(*options) error

// options holds all configuration for a Client.
type options struct {
	// Credential
	credential corehttp.TokenCredential
	scopes     []string

	// Transport
	transport         corehttp.Transport
	connectionTimeout time.Duration
	readTimeout       time.Duration

	// Policies
	retry            *policy.RetryOptions
	perCallPolicies  []corehttp.Policy
	perRetryPolicies []corehttp.Policy
	disableRequestID bool

	// Telemetry
	applicationID  string
	loggingEnabled bool
	logOptions     *policy.LogOptions
	tracer         trace.Tracer
}

func defaultOptions() *options {
	return &options{
		connectionTimeout: 10 * time.Second,
		readTimeout:       60 * time.Second,
	}
}

// WithCredential sets the token credential and the scopes requested for it.
func WithCredential(cred corehttp.TokenCredential, scopes ...string) Option {
	return func(o *options) error {
		if cred == nil {
			return &corehttp.ValidationError{Field: "credential", Message: "credential cannot be nil"}
		}
		if len(scopes) == 0 {
			return &corehttp.ValidationError{Field: "scopes", Message: "at least one scope is required"}
		}
		o.credential = cred
		o.scopes = scopes
		return nil
	}
}

// WithTransport sets a custom transport. The client will not close a
// transport it did not create.
func WithTransport(t corehttp.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return &corehttp.ValidationError{Field: "transport", Message: "transport cannot be nil"}
		}
		o.transport = t
		return nil
	}
}

// WithConnectionTimeout sets the dial timeout used by the default transport.
// It has no effect together with [WithTransport].
func WithConnectionTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return &corehttp.ValidationError{Field: "connectionTimeout", Message: "connection timeout must be positive"}
		}
		o.connectionTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the response-header timeout used by the default
// transport. It has no effect together with [WithTransport].
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return &corehttp.ValidationError{Field: "readTimeout", Message: "read timeout must be positive"}
		}
		o.readTimeout = timeout
		return nil
	}
}

// WithRetryOptions overrides the default retry configuration.
func WithRetryOptions(opts *policy.RetryOptions) Option {
	return func(o *options) error {
		if opts == nil {
			return &corehttp.ValidationError{Field: "retryOptions", Message: "retry options cannot be nil"}
		}
		o.retry = opts
		return nil
	}
}

// WithPerCallPolicies adds policies that run once per logical request,
// before the retry policy.
func WithPerCallPolicies(policies ...corehttp.Policy) Option {
	return func(o *options) error {
		for i, p := range policies {
			if p == nil {
				return &corehttp.ValidationError{Field: "perCallPolicies", Message: fmt.Sprintf("policy at index %d cannot be nil", i)}
			}
		}
		o.perCallPolicies = append(o.perCallPolicies, policies...)
		return nil
	}
}

// WithPerRetryPolicies adds policies that run on every attempt, after the
// retry policy.
func WithPerRetryPolicies(policies ...corehttp.Policy) Option {
	return func(o *options) error {
		for i, p := range policies {
			if p == nil {
				return &corehttp.ValidationError{Field: "perRetryPolicies", Message: fmt.Sprintf("policy at index %d cannot be nil", i)}
			}
		}
		o.perRetryPolicies = append(o.perRetryPolicies, policies...)
		return nil
	}
}

// WithoutRequestID disables the client request id policy.
func WithoutRequestID() Option {
	return func(o *options) error {
		o.disableRequestID = true
		return nil
	}
}

// WithApplicationID prefixes the User-Agent telemetry string so services can
// attribute traffic to the calling application.
func WithApplicationID(id string) Option {
	return func(o *options) error {
		o.applicationID = id
		return nil
	}
}

// WithLogging enables the structured logging policy. Pass nil options to log
// to slog.Default with the default redaction allowlists.
func WithLogging(opts *policy.LogOptions) Option {
	return func(o *options) error {
		o.loggingEnabled = true
		o.logOptions = opts
		return nil
	}
}

// WithLogger is shorthand for [WithLogging] with the given [*slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return &corehttp.ValidationError{Field: "logger", Message: "logger cannot be nil"}
		}
		o.loggingEnabled = true
		o.logOptions = &policy.LogOptions{Logger: logger}
		return nil
	}
}

// WithTracer sets the [trace.Tracer] used to wrap each attempt in a client
// span.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return &corehttp.ValidationError{Field: "tracer", Message: "tracer cannot be nil"}
		}
		o.tracer = tracer
		return nil
	}
}
