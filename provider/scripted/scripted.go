// Package scripted implements a deterministic provider that replays a fixed
// sequence of canned assistant responses. It backs tests and runnable
// examples that must not touch the network.
package scripted

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentweave/core"
)

// ErrExhausted is returned when Complete is called after the last scripted
// response has been consumed.
var ErrExhausted = errors.New("scripted: no more scripted responses")

// Options configures the scripted provider.
type Options struct {
	// Hook runs before each response is returned, receiving the zero-based
	// response index. Tests use it to inject latency or record call order.
	Hook func(index int)

	// OnRequest observes each completion request before it is answered.
	OnRequest func(req core.CompletionRequest)
}

// Provider replays responses first-in first-out. Safe for concurrent use.
type Provider struct {
	mu        sync.Mutex
	responses []string
	current   int
	opts      Options
}

// New creates a scripted provider that will answer with the given responses
// in order.
func New(responses []string, optFns ...func(o *Options)) *Provider {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Provider{responses: responses, opts: opts}
}

// Complete pops the next scripted response.
func (p *Provider) Complete(_ context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	p.mu.Lock()
	index := p.current
	if index >= len(p.responses) {
		p.mu.Unlock()
		return nil, ErrExhausted
	}
	response := p.responses[index]
	p.current++
	p.mu.Unlock()

	if p.opts.OnRequest != nil {
		p.opts.OnRequest(req)
	}

	if p.opts.Hook != nil {
		p.opts.Hook(index)
	}

	return &core.CompletionResponse{Message: core.Assistant(response)}, nil
}

// Remaining reports how many scripted responses are left.
func (p *Provider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.responses) - p.current
}

// Name identifies the backend.
func (p *Provider) Name() string { return "scripted" }
