package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/provider"
)

// SequentialEventKind discriminates pipeline events.
type SequentialEventKind string

const (
	// SequentialAgentStarted fires before each agent's turn.
	SequentialAgentStarted SequentialEventKind = "agent_started"
	// SequentialAgentCompleted fires after each agent's turn with the
	// payload it produced.
	SequentialAgentCompleted SequentialEventKind = "agent_completed"
	// SequentialCompleted fires exactly once with the pipeline's final
	// output, even when the last agent merely replied.
	SequentialCompleted SequentialEventKind = "completed"
)

// SequentialEvent is one entry in the pipeline's event log.
type SequentialEvent struct {
	Kind    SequentialEventKind
	Agent   string
	Index   int
	Payload string
}

// SequentialResult is the outcome of one pipeline run.
type SequentialResult struct {
	RunID      string
	Final      string
	Transcript []core.ChatMessage
}

// SequentialOptions configures the pipeline.
type SequentialOptions struct {
	Logger    logging.Logger
	Collector metrics.Collector
	OnEvent   func(SequentialEvent)
}

// Sequential runs agents one after another, threading a payload through the
// pipeline. The final output is the last non-empty payload unless an agent
// completes explicitly, in which case that message is authoritative and
// later agents do not run.
type Sequential struct {
	provider provider.Provider
	model    string
	agents   []agent.Agent
	opts     SequentialOptions
}

// NewSequential creates a pipeline over the given agents, in order.
func NewSequential(p provider.Provider, model string, agents []agent.Agent, optFns ...func(o *SequentialOptions)) *Sequential {
	opts := SequentialOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Sequential{provider: p, model: model, agents: agents, opts: opts}
}

// Run executes the pipeline for one task.
func (s *Sequential) Run(ctx context.Context, task string) (*SequentialResult, error) {
	if len(s.agents) == 0 {
		return nil, ErrNoAgentsRegistered
	}

	runID := uuid.NewString()
	m := metrics.NewAgentMetrics(runID, "sequential")

	transcript := []core.ChatMessage{core.User(task)}
	payload := task

	s.opts.Logger.Info("sequential.run.start", "run_id", runID, "agents", len(s.agents))

	for i, ag := range s.agents {
		emit(s.opts.Logger, s.opts.OnEvent, SequentialEvent{Kind: SequentialAgentStarted, Agent: ag.Name, Index: i})

		turn, err := ag.Execute(ctx, s.provider, s.model, transcript)
		if err != nil {
			m.RecordError("provider")
			m.Finalize(i, false, 0)
			record(s.opts.Collector, m)

			return nil, err
		}

		m.RecordTokenUsage(turn.Usage)

		switch action := turn.Action.(type) {
		case agent.Respond:
			payload = action.Message
		case agent.HandOff:
			// The target is meaningless in a fixed pipeline; only the note
			// advances the payload.
			if action.Message != "" {
				payload = action.Message
			}
		case agent.Complete:
			final := action.Message
			if final == "" {
				final = payload
			}

			transcript = append(transcript, core.Assistant(final).WithName(ag.Name))

			emit(s.opts.Logger, s.opts.OnEvent, SequentialEvent{Kind: SequentialAgentCompleted, Agent: ag.Name, Index: i, Payload: final})
			emit(s.opts.Logger, s.opts.OnEvent, SequentialEvent{Kind: SequentialCompleted, Payload: final})

			m.Finalize(i+1, true, len(final))
			record(s.opts.Collector, m)

			s.opts.Logger.Info("sequential.run.complete", "run_id", runID, "agent", ag.Name, "early", true)

			return &SequentialResult{RunID: runID, Final: final, Transcript: transcript}, nil
		}

		transcript = append(transcript, core.Assistant(payload).WithName(ag.Name))

		emit(s.opts.Logger, s.opts.OnEvent, SequentialEvent{Kind: SequentialAgentCompleted, Agent: ag.Name, Index: i, Payload: payload})
	}

	emit(s.opts.Logger, s.opts.OnEvent, SequentialEvent{Kind: SequentialCompleted, Payload: payload})

	m.Finalize(len(s.agents), true, len(payload))
	record(s.opts.Collector, m)

	s.opts.Logger.Info("sequential.run.complete", "run_id", runID, "early", false)

	return &SequentialResult{RunID: runID, Final: payload, Transcript: transcript}, nil
}
