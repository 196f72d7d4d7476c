package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/provider"
)

// ConcurrentEventKind discriminates fan-out events.
type ConcurrentEventKind string

const (
	// ConcurrentMessage fires as each agent's result is collected.
	ConcurrentMessage ConcurrentEventKind = "message"
	// ConcurrentCompleted fires once after all results are in.
	ConcurrentCompleted ConcurrentEventKind = "completed"
)

// ConcurrentEvent is one entry in the fan-out event log.
type ConcurrentEvent struct {
	Kind   ConcurrentEventKind
	Agent  string
	Output string
	Count  int
}

// ConcurrentResult is one agent's output, in completion order.
type ConcurrentResult struct {
	Agent  string
	Output string
}

// ConcurrentRunResult is the outcome of one fan-out run. Transcript length
// is always len(results)+1: the task message plus one reply per agent.
type ConcurrentRunResult struct {
	RunID      string
	Results    []ConcurrentResult
	Transcript []core.ChatMessage
}

// ConcurrentOptions configures the fan-out orchestrator.
type ConcurrentOptions struct {
	Logger    logging.Logger
	Collector metrics.Collector
	OnEvent   func(ConcurrentEvent)
}

// Concurrent runs every roster agent against the same task message at once
// and collects results as they complete. A single agent failure aborts the
// whole run.
type Concurrent struct {
	provider provider.Provider
	model    string
	agents   []agent.Agent
	opts     ConcurrentOptions
}

// NewConcurrent creates a fan-out orchestrator over the given roster.
func NewConcurrent(p provider.Provider, model string, agents []agent.Agent, optFns ...func(o *ConcurrentOptions)) *Concurrent {
	opts := ConcurrentOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Concurrent{provider: p, model: model, agents: agents, opts: opts}
}

// outcome travels through the fan-in channel, the single ordering point
// before the shared transcript is touched.
type outcome struct {
	agent  string
	output string
	usage  *core.TokenUsage
}

// Run executes all agents for one task.
func (c *Concurrent) Run(ctx context.Context, task string) (*ConcurrentRunResult, error) {
	if len(c.agents) == 0 {
		return nil, ErrNoAgentsRegistered
	}

	runID := uuid.NewString()
	m := metrics.NewAgentMetrics(runID, "concurrent")

	base := []core.ChatMessage{core.User(task)}

	c.opts.Logger.Info("concurrent.run.start", "run_id", runID, "agents", len(c.agents))

	g, gctx := errgroup.WithContext(ctx)
	outcomes := make(chan outcome, len(c.agents))

	for _, ag := range c.agents {
		ag := ag
		g.Go(func() error {
			turn, err := ag.Execute(gctx, c.provider, c.model, base)
			if err != nil {
				return err
			}

			select {
			case outcomes <- outcome{agent: ag.Name, output: turnOutput(turn), usage: turn.Usage}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	go func() {
		// Close once all producers are done so the drain loop below ends.
		_ = g.Wait()
		close(outcomes)
	}()

	transcript := base
	var results []ConcurrentResult

	for o := range outcomes {
		m.RecordTokenUsage(o.usage)

		results = append(results, ConcurrentResult{Agent: o.agent, Output: o.output})
		transcript = append(transcript, core.Assistant(o.output).WithName(o.agent))

		emit(c.opts.Logger, c.opts.OnEvent, ConcurrentEvent{Kind: ConcurrentMessage, Agent: o.agent, Output: o.output})
	}

	if err := g.Wait(); err != nil {
		m.RecordError("provider")
		m.Finalize(len(results), false, 0)
		record(c.opts.Collector, m)

		return nil, err
	}

	emit(c.opts.Logger, c.opts.OnEvent, ConcurrentEvent{Kind: ConcurrentCompleted, Count: len(results)})

	m.Finalize(len(results), true, 0)
	record(c.opts.Collector, m)

	c.opts.Logger.Info("concurrent.run.complete", "run_id", runID, "results", len(results))

	return &ConcurrentRunResult{RunID: runID, Results: results, Transcript: transcript}, nil
}

// turnOutput extracts the agent's textual contribution, falling back to the
// raw reply when the action carries no message.
func turnOutput(turn *agent.Turn) string {
	var msg string

	switch action := turn.Action.(type) {
	case agent.Respond:
		msg = action.Message
	case agent.HandOff:
		msg = action.Message
	case agent.Complete:
		msg = action.Message
	}

	if msg == "" {
		msg = turn.RawContent
	}

	return msg
}
