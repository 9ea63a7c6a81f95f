// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"

	corehttp "github.com/go-corehttp/corehttp-go"
	"github.com/go-corehttp/corehttp-go/paging"
	"github.com/go-corehttp/corehttp-go/poller"
	"github.com/go-corehttp/corehttp-go/policy"
	"github.com/go-corehttp/corehttp-go/transport"
)

// Client is the runtime shared by generated operation clients: a service
// endpoint plus a pipeline assembled from a standard set of options.
// Operation methods build a request against the endpoint, run it through the
// pipeline, and decode the response.
type Client struct {
	endpoint      string
	pl            corehttp.Pipeline
	tr            corehttp.Transport
	ownsTransport bool
}

// New creates a Client for the given endpoint.
//
// The assembled pipeline runs, in order: per-call policies, request id, user
// agent, retry, per-retry policies, bearer token authentication (when a
// credential is configured), logging (when enabled) and tracing (when a
// tracer is configured), terminated by the transport.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, &corehttp.ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, &corehttp.ValidationError{Field: "endpoint", Message: err.Error()}
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	tr := o.transport
	ownsTransport := false
	if tr == nil {
		tr = transport.NewHTTPTransport(&transport.Options{
			ConnectionTimeout: o.connectionTimeout,
			ReadTimeout:       o.readTimeout,
		})
		ownsTransport = true
	}

	var policies []corehttp.Policy
	policies = append(policies, o.perCallPolicies...)
	if !o.disableRequestID {
		policies = append(policies, policy.NewRequestIDPolicy(nil))
	}
	policies = append(policies, policy.NewUserAgentPolicy(o.applicationID))
	policies = append(policies, policy.NewRetryPolicy(o.retry))
	policies = append(policies, o.perRetryPolicies...)
	if o.credential != nil {
		policies = append(policies, policy.NewBearerTokenPolicy(o.credential, o.scopes, nil))
	}
	if o.loggingEnabled {
		policies = append(policies, policy.NewLogPolicy(o.logOptions))
	}
	if o.tracer != nil {
		policies = append(policies, policy.NewTracingPolicy(o.tracer))
	}

	return &Client{
		endpoint:      endpoint,
		pl:            corehttp.NewPipeline(tr, policies...),
		tr:            tr,
		ownsTransport: ownsTransport,
	}, nil
}

// Endpoint returns the service endpoint the client was created with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Pipeline returns the client's assembled pipeline for callers that need to
// send hand-built requests, e.g. pollers.
func (c *Client) Pipeline() corehttp.Pipeline {
	return c.pl
}

// Close releases the client's transport if the client created it. A
// transport supplied through [WithTransport] is left alone, since it may be
// shared.
func (c *Client) Close() error {
	if !c.ownsTransport {
		return nil
	}
	return c.tr.Close()
}

// NewRequest creates a request for path resolved against the client's
// endpoint.
func (c *Client) NewRequest(ctx context.Context, method, path string) (*corehttp.Request, error) {
	u, err := url.JoinPath(c.endpoint, path)
	if err != nil {
		return nil, err
	}
	return corehttp.NewRequest(ctx, method, u)
}

// Do runs req through the pipeline. When expectedStatuses is non-empty and
// the response status is not among them, the response is converted to a
// *[corehttp.ResponseError].
func (c *Client) Do(ctx context.Context, req *corehttp.Request, expectedStatuses ...int) (*http.Response, error) {
	resp, err := c.pl.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(expectedStatuses) > 0 && !corehttp.HasStatusCode(resp, expectedStatuses...) {
		return resp, corehttp.NewResponseError(resp)
	}
	return resp, nil
}

// EncodeJSON marshals v and attaches it as the request's JSON body.
func EncodeJSON(req *corehttp.Request, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return req.SetBody(corehttp.NopCloser(bytes.NewReader(data)), "application/json")
}

// DecodeJSON downloads the response body and unmarshals it into v. Schema
// mismatches surface as *[corehttp.DecodeError].
func DecodeJSON(resp *http.Response, v any) error {
	body, err := corehttp.Payload(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &corehttp.DecodeError{Err: err}
	}
	return nil
}

// ListPage is the conventional wire shape of a list endpoint: a value array
// plus a nextLink continuation.
type ListPage[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"nextLink,omitzero"`
}

// NewListPager pages through a conventional list endpoint. The first page is
// fetched from path resolved against the client's endpoint; subsequent pages
// follow each page's nextLink until a page carries none.
func NewListPager[T any](c *Client, path string) *paging.Pager[ListPage[T]] {
	return paging.New(paging.Handler[ListPage[T]]{
		More: func(page ListPage[T]) bool {
			return page.NextLink != ""
		},
		Fetcher: func(ctx context.Context, current *ListPage[T]) (ListPage[T], error) {
			var page ListPage[T]
			var req *corehttp.Request
			var err error
			if current == nil {
				req, err = c.NewRequest(ctx, http.MethodGet, path)
			} else {
				req, err = corehttp.NewRequest(ctx, http.MethodGet, current.NextLink)
			}
			if err != nil {
				return page, err
			}
			resp, err := c.Do(ctx, req, http.StatusOK)
			if err != nil {
				return page, err
			}
			if err := DecodeJSON(resp, &page); err != nil {
				return page, err
			}
			return page, nil
		},
	})
}

// NewPoller wraps a long-running operation's initiating response in a
// [poller.Poller] driven by the client's pipeline.
func NewPoller[T any](c *Client, initial *http.Response, opts *poller.Options) (*poller.Poller[T], error) {
	return poller.New[T](c.pl, initial, opts)
}
