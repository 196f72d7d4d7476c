// Package orchestrator implements the five collaboration patterns that drive
// multi-agent runs: Sequential, Concurrent, GroupChat, Handoff and Magentic.
// Each orchestrator owns its own termination and routing policy; all of them
// maintain an append-only transcript, emit events through an optional
// callback, and hand one metrics record per run to an optional collector.
package orchestrator

import (
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
)

// emit invokes an event callback, isolating panics so a misbehaving observer
// can never corrupt a run.
func emit[E any](logger logging.Logger, cb func(E), ev E) {
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("event callback panicked", "panic", r)
		}
	}()

	cb(ev)
}

// record hands a finalized metrics record to the collector, if configured.
func record(collector metrics.Collector, m *metrics.AgentMetrics) {
	if collector == nil || m == nil {
		return
	}

	collector.Record(*m)
}
