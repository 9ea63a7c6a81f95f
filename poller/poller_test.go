// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	corehttp "github.com/go-corehttp/corehttp-go"
)

type widget struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// scriptedTransport serves canned responses in order and records every URL
// it was asked for.
type scriptedTransport struct {
	responses []*http.Response
	urls      []string
}

func (s *scriptedTransport) Do(ctx context.Context, req *corehttp.Request) (*http.Response, error) {
	s.urls = append(s.urls, req.Raw().URL.String())
	if len(s.responses) == 0 {
		return nil, &corehttp.TransportError{Err: errors.New("script exhausted")}
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	resp.Request = req.Raw()
	return resp, nil
}

func (s *scriptedTransport) Close() error { return nil }

func makeResponse(method, rawURL string, status int, body string, headers map[string]string) *http.Response {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	resp := &http.Response{
		StatusCode:    status,
		Header:        http.Header{},
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       &http.Request{Method: method, URL: u},
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

// countingSleeper counts sleeps instead of waiting.
type countingSleeper struct {
	count  int
	delays []time.Duration
}

func (s *countingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.count++
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestPoller_OperationStrategy(t *testing.T) {
	// Two in-progress polls, then success; the poller must hit the network
	// exactly three times before fetching the final resource.
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/ops/1", http.StatusOK, `{"status":"Running"}`, nil),
		makeResponse(http.MethodGet, "https://svc/ops/1", http.StatusOK, `{"status":"Running"}`, nil),
		makeResponse(http.MethodGet, "https://svc/ops/1", http.StatusOK, `{"status":"Succeeded","resourceLocation":"https://svc/widgets/w1"}`, nil),
		makeResponse(http.MethodGet, "https://svc/widgets/w1", http.StatusOK, `{"name":"w1","size":3}`, nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
		corehttp.HeaderOperationLocation: "https://svc/ops/1",
	})
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Done() {
		t.Fatal("poller must not start done")
	}
	if got := p.State(); got != StateInProgress {
		t.Errorf("initial state = %v, want InProgress", got)
	}

	sleeper := &countingSleeper{}
	p.sleep = sleeper.sleep

	got, err := p.PollUntilDone(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(widget{Name: "w1", Size: 3}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	wantURLs := []string{
		"https://svc/ops/1",
		"https://svc/ops/1",
		"https://svc/ops/1",
		"https://svc/widgets/w1",
	}
	if diff := cmp.Diff(wantURLs, tr.urls); diff != "" {
		t.Errorf("requested URLs mismatch (-want +got):\n%s", diff)
	}
	if sleeper.count != 2 {
		t.Errorf("slept %d times, want 2 (between the three polls)", sleeper.count)
	}
	if !p.Done() || p.State() != StateSucceeded {
		t.Errorf("final state = %v, want Succeeded", p.State())
	}
}

func TestPoller_RetryAfterHintHonored(t *testing.T) {
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/ops/1", http.StatusOK, `{"status":"Running"}`, map[string]string{"Retry-After": "3"}),
		makeResponse(http.MethodGet, "https://svc/ops/1", http.StatusOK, `{"status":"Succeeded"}`, nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPut, "https://svc/widgets/w1", http.StatusCreated, "", map[string]string{
		corehttp.HeaderOperationLocation: "https://svc/ops/1",
	})
	p, err := New[widget](pl, initial, &Options{Frequency: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	sleeper := &countingSleeper{}
	p.sleep = sleeper.sleep

	if _, err := p.PollUntilDone(t.Context()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]time.Duration{3 * time.Second}, sleeper.delays); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestPoller_LocationStrategy(t *testing.T) {
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/status/1", http.StatusAccepted, "", map[string]string{
			corehttp.HeaderLocation: "https://svc/status/2",
		}),
		makeResponse(http.MethodGet, "https://svc/status/2", http.StatusOK, `{"name":"w2","size":7}`, nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
		corehttp.HeaderLocation: "https://svc/status/1",
	})
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	sleeper := &countingSleeper{}
	p.sleep = sleeper.sleep

	got, err := p.PollUntilDone(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(widget{Name: "w2", Size: 7}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	// The 202 carried a new Location; the second poll must follow it.
	wantURLs := []string{"https://svc/status/1", "https://svc/status/2"}
	if diff := cmp.Diff(wantURLs, tr.urls); diff != "" {
		t.Errorf("requested URLs mismatch (-want +got):\n%s", diff)
	}
}

func TestPoller_BodyStrategy(t *testing.T) {
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/widgets/w3", http.StatusOK, `{"properties":{"provisioningState":"Creating"}}`, nil),
		makeResponse(http.MethodGet, "https://svc/widgets/w3", http.StatusOK, `{"name":"w3","size":1,"properties":{"provisioningState":"Succeeded"}}`, nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPut, "https://svc/widgets/w3", http.StatusCreated,
		`{"properties":{"provisioningState":"Creating"}}`, nil)
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.State(); got != StateInProgress {
		t.Fatalf("initial state = %v, want InProgress", got)
	}
	sleeper := &countingSleeper{}
	p.sleep = sleeper.sleep

	got, err := p.PollUntilDone(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "w3" {
		t.Errorf("result = %+v", got)
	}
}

func TestPoller_Failed(t *testing.T) {
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/ops/9", http.StatusOK, `{"status":"Failed"}`, nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
		corehttp.HeaderOperationLocation: "https://svc/ops/9",
	})
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	sleeper := &countingSleeper{}
	p.sleep = sleeper.sleep

	_, err = p.PollUntilDone(t.Context())
	var pollErr *corehttp.PollingFailedError
	if !errors.As(err, &pollErr) {
		t.Fatalf("got %v, want *PollingFailedError", err)
	}
	if pollErr.Status != string(StateFailed) {
		t.Errorf("Status = %q, want Failed", pollErr.Status)
	}

	// Terminal states are one-way; another Poll must not touch the network.
	before := len(tr.urls)
	if _, err := p.Poll(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(tr.urls) != before {
		t.Error("Poll after a terminal state reached the network")
	}
}

func TestPoller_Cancel(t *testing.T) {
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/ops/5", http.StatusOK, `{"status":"Running"}`, nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
		corehttp.HeaderOperationLocation: "https://svc/ops/5",
	})
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}

	p.Cancel()
	if !p.Done() {
		t.Error("Done must report true after Cancel")
	}
	if got := p.State(); got != StateCanceled {
		t.Errorf("state = %v, want Canceled", got)
	}
	if _, err := p.Result(t.Context()); !errors.Is(err, ErrCanceled) {
		t.Errorf("Result = %v, want ErrCanceled", err)
	}
	if len(tr.urls) != 0 {
		t.Error("canceled poller must not poll")
	}
}

func TestPoller_ResultBeforeDone(t *testing.T) {
	tr := &scriptedTransport{}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
		corehttp.HeaderOperationLocation: "https://svc/ops/2",
	})
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Result(t.Context()); err == nil {
		t.Error("Result before a terminal state must fail")
	}
}

func TestPoller_ErrorStatusOnPoll(t *testing.T) {
	tr := &scriptedTransport{responses: []*http.Response{
		makeResponse(http.MethodGet, "https://svc/ops/3", http.StatusInternalServerError, "boom", nil),
	}}
	pl := corehttp.NewPipeline(tr)

	initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
		corehttp.HeaderOperationLocation: "https://svc/ops/3",
	})
	p, err := New[widget](pl, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Poll(t.Context())
	var respErr *corehttp.ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("got %v, want *ResponseError", err)
	}
}

func TestNew_RequiresInitialResponse(t *testing.T) {
	pl := corehttp.NewPipeline(&scriptedTransport{})
	if _, err := New[widget](pl, nil, nil); err == nil {
		t.Error("nil initial response must be rejected")
	}
}

func TestNew_RejectsUnpollableResponse(t *testing.T) {
	pl := corehttp.NewPipeline(&scriptedTransport{})
	initial := makeResponse(http.MethodDelete, "https://svc/widgets/w1", http.StatusBadRequest, "", nil)
	if _, err := New[widget](pl, initial, nil); err == nil {
		t.Error("a response with no polling location and an error status must be rejected")
	}
}

func TestLocationStrategy_UpdateClassifiesAnyStatus(t *testing.T) {
	// Strategies can be driven directly, without the poller's status
	// filtering in front of them.
	tests := map[string]struct {
		status int
		want   State
	}{
		"202 stays in progress": {status: http.StatusAccepted, want: StateInProgress},
		"200 succeeds":          {status: http.StatusOK, want: StateSucceeded},
		"204 succeeds":          {status: http.StatusNoContent, want: StateSucceeded},
		"500 fails":             {status: http.StatusInternalServerError, want: StateFailed},
		"404 fails":             {status: http.StatusNotFound, want: StateFailed},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			initial := makeResponse(http.MethodPost, "https://svc/widgets", http.StatusAccepted, "", map[string]string{
				corehttp.HeaderLocation: "https://svc/status/1",
			})
			s := newLocationStrategy(initial, "https://svc/status/1")
			if err := s.Update(makeResponse(http.MethodGet, "https://svc/status/1", tc.status, "", nil)); err != nil {
				t.Fatal(err)
			}
			if got := s.State(); got != tc.want {
				t.Errorf("state = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := map[string]State{
		"Succeeded":    StateSucceeded,
		"succeeded":    StateSucceeded,
		"Failed":       StateFailed,
		"Canceled":     StateCanceled,
		"Cancelled":    StateCanceled,
		"NotStarted":   StateNotStarted,
		"Running":      StateInProgress,
		"Provisioning": StateInProgress,
		"Accepted":     StateInProgress,
	}
	for in, want := range tests {
		if got := parseState(in); got != want {
			t.Errorf("parseState(%q) = %v, want %v", in, got, want)
		}
	}
}
