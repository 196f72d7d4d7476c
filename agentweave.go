// Package agentweave provides a high-level façade over the orchestrator,
// provider and flow packages, enabling rapid construction of multi-agent
// reasoning systems. Most applications interact with this package by:
//  1. Creating a Weave via New() with a provider and default model
//  2. Building an orchestrator (sequential, concurrent, group chat, handoff,
//     magentic) over a roster of agents
//  3. Running the orchestrator, or loading a whole setup from a YAML flow
//     document via the flow package
//
// The façade wires one logger, metrics collector and shared-state store into
// every orchestrator it builds. All defaults are safe for local development
// and testing; production deployments typically supply a structured logger
// and a durable metrics sink.
package agentweave

import (
	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/orchestrator"
	"github.com/hupe1980/agentweave/provider"
	"github.com/hupe1980/agentweave/state"
)

// Version is the semantic version of the module.
const Version = "0.1.0"

// Options configures the Weave instance.
type Options struct {
	// Logger receives structured events from every orchestrator built by
	// this instance. Defaults to the NoOp logger.
	Logger logging.Logger

	// Collector receives per-run metrics. Defaults to an in-memory
	// collector reachable via Metrics().
	Collector metrics.Collector

	// State is the shared key/value store handed to session-based
	// orchestrators. Defaults to an in-memory store.
	State state.Store
}

// Weave is the high-level façade aggregating a provider, a default model and
// the ambient services shared by every orchestrator it builds.
type Weave struct {
	provider provider.Provider
	model    string
	opts     Options
}

// New creates a Weave over the given provider and default model. Any unset
// service is initialized with an in-memory implementation.
func New(p provider.Provider, model string, optFns ...func(o *Options)) *Weave {
	opts := Options{
		Logger:    logging.NoOpLogger{},
		Collector: metrics.NewInMemoryCollector(),
		State:     state.NewInMemoryStore(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Weave{provider: p, model: model, opts: opts}
}

// Metrics returns the configured metrics collector.
func (w *Weave) Metrics() metrics.Collector { return w.opts.Collector }

// State returns the configured shared-state store.
func (w *Weave) State() state.Store { return w.opts.State }

// NewSequential builds a pipeline over the given agents with the façade's
// ambient services wired in. Caller options run last and may override them.
func (w *Weave) NewSequential(agents []agent.Agent, optFns ...func(o *orchestrator.SequentialOptions)) *orchestrator.Sequential {
	fns := append([]func(o *orchestrator.SequentialOptions){func(o *orchestrator.SequentialOptions) {
		o.Logger = w.opts.Logger
		o.Collector = w.opts.Collector
	}}, optFns...)

	return orchestrator.NewSequential(w.provider, w.model, agents, fns...)
}

// NewConcurrent builds a fan-out orchestrator over the given agents.
func (w *Weave) NewConcurrent(agents []agent.Agent, optFns ...func(o *orchestrator.ConcurrentOptions)) *orchestrator.Concurrent {
	fns := append([]func(o *orchestrator.ConcurrentOptions){func(o *orchestrator.ConcurrentOptions) {
		o.Logger = w.opts.Logger
		o.Collector = w.opts.Collector
	}}, optFns...)

	return orchestrator.NewConcurrent(w.provider, w.model, agents, fns...)
}

// NewGroupChat builds a managed group chat over the given agents.
func (w *Weave) NewGroupChat(agents []agent.Agent, manager orchestrator.GroupChatManager, optFns ...func(o *orchestrator.GroupChatOptions)) *orchestrator.GroupChat {
	fns := append([]func(o *orchestrator.GroupChatOptions){func(o *orchestrator.GroupChatOptions) {
		o.Logger = w.opts.Logger
		o.Collector = w.opts.Collector
	}}, optFns...)

	return orchestrator.NewGroupChat(w.provider, w.model, agents, manager, fns...)
}

// NewHandoff builds a handoff orchestrator over the given agents, sharing
// the façade's state store across sessions.
func (w *Weave) NewHandoff(agents []agent.Agent, optFns ...func(o *orchestrator.HandoffOptions)) *orchestrator.Handoff {
	fns := append([]func(o *orchestrator.HandoffOptions){func(o *orchestrator.HandoffOptions) {
		o.Logger = w.opts.Logger
		o.Collector = w.opts.Collector
		o.State = w.opts.State
	}}, optFns...)

	return orchestrator.NewHandoff(w.provider, w.model, agents, fns...)
}

// NewMagentic builds a manager-led orchestrator. Register agents on the
// returned instance before running it.
func (w *Weave) NewMagentic(optFns ...func(o *orchestrator.MagenticOptions)) *orchestrator.Magentic {
	fns := append([]func(o *orchestrator.MagenticOptions){func(o *orchestrator.MagenticOptions) {
		o.Logger = w.opts.Logger
		o.Collector = w.opts.Collector
	}}, optFns...)

	return orchestrator.NewMagentic(w.provider, w.model, fns...)
}
