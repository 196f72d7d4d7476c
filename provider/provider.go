// Package provider defines the boundary to LLM backends. Orchestrators only
// ever call Complete; streaming is an optional extra surface consumed by
// interactive front ends.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentweave/core"
)

// Provider is the synchronous completion interface consumed by agents and
// orchestrators. Implementations must be safe for concurrent use.
type Provider interface {
	// Complete performs one request/response completion.
	Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error)

	// Name identifies the backend (e.g. "openai", "anthropic", "scripted").
	Name() string
}

// Streamer is implemented by providers that support incremental delivery.
type Streamer interface {
	// Stream yields delta events terminated by a Completed event. The error
	// channel carries at most one error.
	Stream(ctx context.Context, req core.CompletionRequest) (<-chan core.StreamEvent, <-chan error)
}

// Capabilities describes optional provider features.
type Capabilities struct {
	Streaming bool
	Tools     bool
	Vision    bool
}

// ErrMissingAPIKey indicates the adapter was constructed without credentials
// and none were found in the environment.
var ErrMissingAPIKey = errors.New("provider: missing api key")

// InvalidResponseError reports a backend reply the adapter could not map
// onto the core data model.
type InvalidResponseError struct {
	Provider string
	Reason   string
}

// Error implements the error interface.
func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("provider %s: invalid response: %s", e.Provider, e.Reason)
}
