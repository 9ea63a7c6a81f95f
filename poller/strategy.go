// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// State is the client-side view of a long-running operation.
type State string

// Operation states.
const (
	StateNotStarted State = "NotStarted"
	StateInProgress State = "InProgress"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
	StateCanceled   State = "Canceled"
)

// Terminal reports whether s is one of the one-way final states.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Strategy drives one flavor of long-running-operation protocol. Different
// services encode progress differently; a Strategy hides that behind a
// uniform state machine. Implementations are not safe for concurrent use;
// [Poller] serializes access.
type Strategy interface {
	// State returns the last observed state.
	State() State
	// PollURL returns the URL the poller should fetch next.
	PollURL() string
	// Update ingests a polled response and advances the state.
	Update(resp *http.Response) error
	// FinalURL returns the URL holding the final resource, or "" when the
	// last polled body already is the resource.
	FinalURL() string
}

// newStrategy picks the protocol from the initiating response's headers.
func newStrategy(initial *http.Response) (Strategy, error) {
	if initial.Request == nil {
		return nil, errors.New("poller: initial response carries no request")
	}
	if h := firstHeader(initial, corehttp.HeaderOperationLocation, corehttp.HeaderAzureAsyncOperation); h != "" {
		return newOperationStrategy(initial, h), nil
	}
	if loc := initial.Header.Get(corehttp.HeaderLocation); loc != "" {
		return newLocationStrategy(initial, loc), nil
	}
	return newBodyStrategy(initial)
}

func firstHeader(resp *http.Response, names ...string) string {
	for _, name := range names {
		if v := resp.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// statusDocument is the conventional shape of an operation status resource.
type statusDocument struct {
	Status           string `json:"status"`
	ResourceLocation string `json:"resourceLocation"`
}

// parseState maps a service status string onto the state machine. Services
// use arbitrary in-flight vocabulary ("Accepted", "Provisioning", ...); only
// the terminal spellings are meaningful, everything else is progress.
func parseState(status string) State {
	switch strings.ToLower(status) {
	case "succeeded":
		return StateSucceeded
	case "failed":
		return StateFailed
	case "canceled", "cancelled":
		return StateCanceled
	case "notstarted":
		return StateNotStarted
	default:
		return StateInProgress
	}
}

// operationStrategy polls a dedicated operation resource named by the
// Operation-Location or Azure-AsyncOperation header. The status document's
// resourceLocation field, when present, names the final resource.
type operationStrategy struct {
	pollURL     string
	state       State
	resourceURL string
}

func newOperationStrategy(initial *http.Response, pollURL string) *operationStrategy {
	s := &operationStrategy{
		pollURL: pollURL,
		state:   StateInProgress,
	}
	// PUT and PATCH operations materialize the resource at the original
	// URL; POST only has a final resource if the status document names one.
	switch initial.Request.Method {
	case http.MethodPut, http.MethodPatch:
		s.resourceURL = initial.Request.URL.String()
	}
	// The initiating response may already carry a status document.
	if body, err := corehttp.Payload(initial); err == nil && len(body) > 0 {
		var doc statusDocument
		if err := json.Unmarshal(body, &doc); err == nil && doc.Status != "" {
			s.state = parseState(doc.Status)
		}
	}
	return s
}

func (s *operationStrategy) State() State    { return s.state }
func (s *operationStrategy) PollURL() string { return s.pollURL }

func (s *operationStrategy) Update(resp *http.Response) error {
	body, err := corehttp.Payload(resp)
	if err != nil {
		return err
	}
	var doc statusDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return &corehttp.DecodeError{Err: err}
	}
	if doc.Status == "" {
		return &corehttp.DecodeError{Err: errors.New("operation status document has no status field")}
	}
	s.state = parseState(doc.Status)
	if doc.ResourceLocation != "" {
		s.resourceURL = doc.ResourceLocation
	}
	return nil
}

func (s *operationStrategy) FinalURL() string {
	if s.state != StateSucceeded {
		return ""
	}
	return s.resourceURL
}

// locationStrategy polls the URL from the Location header until the service
// stops answering 202. The terminal response body is the final resource.
type locationStrategy struct {
	pollURL string
	state   State
}

func newLocationStrategy(initial *http.Response, pollURL string) *locationStrategy {
	state := StateInProgress
	if initial.StatusCode != http.StatusAccepted && initial.StatusCode < 300 {
		state = StateSucceeded
	}
	return &locationStrategy{pollURL: pollURL, state: state}
}

func (s *locationStrategy) State() State    { return s.state }
func (s *locationStrategy) PollURL() string { return s.pollURL }

// Update classifies any status: 202 keeps the loop going, another success
// status completes it, and an error status fails the operation. [Poller]
// filters error statuses before calling Update, but a Strategy must stay
// correct when driven directly.
func (s *locationStrategy) Update(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusAccepted:
		s.state = StateInProgress
		if loc := resp.Header.Get(corehttp.HeaderLocation); loc != "" {
			s.pollURL = loc
		}
	case resp.StatusCode < 300:
		s.state = StateSucceeded
	default:
		s.state = StateFailed
	}
	return nil
}

func (*locationStrategy) FinalURL() string { return "" }

// bodyStrategy polls the original resource URL and reads the conventional
// properties.provisioningState field. Services that omit the field are done
// as soon as they answer with a success status.
type bodyStrategy struct {
	pollURL string
	state   State
}

type provisioningDocument struct {
	Properties struct {
		ProvisioningState string `json:"provisioningState"`
	} `json:"properties"`
}

func newBodyStrategy(initial *http.Response) (*bodyStrategy, error) {
	s := &bodyStrategy{pollURL: initial.Request.URL.String()}
	switch {
	case initial.StatusCode == http.StatusAccepted:
		s.state = StateInProgress
	case initial.StatusCode < 300:
		s.state = StateInProgress
		if body, err := corehttp.Payload(initial); err == nil {
			s.state = provisioningState(body, StateSucceeded)
		}
	default:
		return nil, errors.New("poller: initiating response carries no polling location and no pollable body")
	}
	return s, nil
}

func provisioningState(body []byte, whenAbsent State) State {
	if len(body) == 0 {
		return whenAbsent
	}
	var doc provisioningDocument
	if err := json.Unmarshal(body, &doc); err != nil || doc.Properties.ProvisioningState == "" {
		return whenAbsent
	}
	return parseState(doc.Properties.ProvisioningState)
}

func (s *bodyStrategy) State() State    { return s.state }
func (s *bodyStrategy) PollURL() string { return s.pollURL }

func (s *bodyStrategy) Update(resp *http.Response) error {
	if resp.StatusCode == http.StatusAccepted {
		s.state = StateInProgress
		return nil
	}
	body, err := corehttp.Payload(resp)
	if err != nil {
		return err
	}
	s.state = provisioningState(body, StateSucceeded)
	return nil
}

func (*bodyStrategy) FinalURL() string { return "" }
