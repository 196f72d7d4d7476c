package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/provider/scripted"
)

func TestSequentialRunsAgentsInOrder(t *testing.T) {
	p := scripted.New([]string{"draft summary", "polished summary"})

	seq := NewSequential(p, "test-model", []agent.Agent{
		agent.New("Summarizer", "Summarize."),
		agent.New("Refiner", "Refine."),
	})

	result, err := seq.Run(context.Background(), "summarize this text")
	require.NoError(t, err)

	assert.Equal(t, "polished summary", result.Final)
	require.Len(t, result.Transcript, 3)
	assert.Equal(t, core.RoleUser, result.Transcript[0].Role)
	assert.Equal(t, "Summarizer", result.Transcript[1].Name)
	assert.Equal(t, "draft summary", result.Transcript[1].Content)
	assert.Equal(t, "Refiner", result.Transcript[2].Name)
}

func TestSequentialEmitsEvents(t *testing.T) {
	p := scripted.New([]string{"one", "two"})

	var events []SequentialEvent

	seq := NewSequential(p, "m", []agent.Agent{
		agent.New("A", "a"),
		agent.New("B", "b"),
	}, func(o *SequentialOptions) {
		o.OnEvent = func(ev SequentialEvent) { events = append(events, ev) }
	})

	_, err := seq.Run(context.Background(), "task")
	require.NoError(t, err)

	require.Len(t, events, 5)
	assert.Equal(t, SequentialAgentStarted, events[0].Kind)
	assert.Equal(t, SequentialAgentCompleted, events[1].Kind)
	assert.Equal(t, SequentialAgentStarted, events[2].Kind)
	assert.Equal(t, SequentialAgentCompleted, events[3].Kind)
	assert.Equal(t, SequentialCompleted, events[4].Kind)
	assert.Equal(t, "two", events[4].Payload)
}

func TestSequentialErrorsWhenNoAgents(t *testing.T) {
	seq := NewSequential(scripted.New(nil), "m", nil)

	_, err := seq.Run(context.Background(), "task")

	assert.ErrorIs(t, err, ErrNoAgentsRegistered)
}

func TestSequentialEarlyComplete(t *testing.T) {
	// Only one response is scripted; a second agent turn would fail.
	p := scripted.New([]string{`{"action": "complete", "message": "done early"}`})

	seq := NewSequential(p, "m", []agent.Agent{
		agent.New("First", "f"),
		agent.New("Second", "s"),
	})

	result, err := seq.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, "done early", result.Final)
	require.Len(t, result.Transcript, 2)
	assert.Equal(t, "First", result.Transcript[1].Name)
}

func TestSequentialHandoffAdvancesPayloadOnly(t *testing.T) {
	p := scripted.New([]string{
		`{"action": "respond", "message": "base payload"}`,
		`{"action": "hand_off", "target": "Ignored"}`,
		`{"action": "hand_off", "target": "Ignored", "message": "note payload"}`,
	})

	seq := NewSequential(p, "m", []agent.Agent{
		agent.New("A", "a"),
		agent.New("B", "b"),
		agent.New("C", "c"),
	})

	result, err := seq.Run(context.Background(), "task")
	require.NoError(t, err)

	// The empty handoff note left the payload untouched; the final one
	// advanced it.
	assert.Equal(t, "note payload", result.Final)
	assert.Equal(t, "base payload", result.Transcript[2].Content)
}

func TestSequentialPropagatesTurnErrors(t *testing.T) {
	p := scripted.New(nil) // exhausted immediately

	seq := NewSequential(p, "m", []agent.Agent{agent.New("A", "a")})

	_, err := seq.Run(context.Background(), "task")

	assert.ErrorIs(t, err, scripted.ErrExhausted)
}

func TestSequentialCallbackPanicIsIsolated(t *testing.T) {
	p := scripted.New([]string{"fine"})

	seq := NewSequential(p, "m", []agent.Agent{agent.New("A", "a")}, func(o *SequentialOptions) {
		o.OnEvent = func(SequentialEvent) { panic("misbehaving observer") }
	})

	result, err := seq.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "fine", result.Final)
}

func TestSequentialRecordsMetrics(t *testing.T) {
	p := scripted.New([]string{"out"})
	collector := metrics.NewInMemoryCollector()

	seq := NewSequential(p, "m", []agent.Agent{agent.New("A", "a")}, func(o *SequentialOptions) {
		o.Collector = collector
	})

	_, err := seq.Run(context.Background(), "task")
	require.NoError(t, err)

	records := collector.Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "sequential", records[0].AgentName)
	assert.True(t, records[0].Execution.Succeeded)
	assert.Equal(t, 1, records[0].Execution.Rounds)
}
