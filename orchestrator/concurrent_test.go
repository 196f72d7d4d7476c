package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/provider/scripted"
)

func TestConcurrentCollectsAllResults(t *testing.T) {
	// Each agent pins its own provider so outputs attribute deterministically.
	agents := []agent.Agent{
		agent.New("Alpha", "a", agent.WithProvider(scripted.New([]string{"alpha out"}))),
		agent.New("Beta", "b", agent.WithProvider(scripted.New([]string{"beta out"}))),
		agent.New("Gamma", "c", agent.WithProvider(scripted.New([]string{"gamma out"}))),
	}

	c := NewConcurrent(nil, "m", agents)

	result, err := c.Run(context.Background(), "fan out")
	require.NoError(t, err)

	require.Len(t, result.Results, 3)
	require.Len(t, result.Transcript, 4)
	assert.Equal(t, core.RoleUser, result.Transcript[0].Role)

	outputs := map[string]string{}
	for _, r := range result.Results {
		outputs[r.Agent] = r.Output
	}

	assert.Equal(t, "alpha out", outputs["Alpha"])
	assert.Equal(t, "beta out", outputs["Beta"])
	assert.Equal(t, "gamma out", outputs["Gamma"])
}

func TestConcurrentCompletionOrderWins(t *testing.T) {
	slow := scripted.New([]string{"slow out"}, func(o *scripted.Options) {
		o.Hook = func(int) { time.Sleep(150 * time.Millisecond) }
	})

	agents := []agent.Agent{
		agent.New("Slow", "s", agent.WithProvider(slow)),
		agent.New("Fast", "f", agent.WithProvider(scripted.New([]string{"fast out"}))),
	}

	c := NewConcurrent(nil, "m", agents)

	result, err := c.Run(context.Background(), "race")
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, "Fast", result.Results[0].Agent)
	assert.Equal(t, "Slow", result.Results[1].Agent)

	// Transcript ordering reflects completion order too.
	assert.Equal(t, "Fast", result.Transcript[1].Name)
}

func TestConcurrentErrorsWhenNoAgents(t *testing.T) {
	c := NewConcurrent(scripted.New(nil), "m", nil)

	_, err := c.Run(context.Background(), "task")

	assert.ErrorIs(t, err, ErrNoAgentsRegistered)
}

func TestConcurrentSingleFailureAbortsRun(t *testing.T) {
	agents := []agent.Agent{
		agent.New("Good", "g", agent.WithProvider(scripted.New([]string{"fine"}))),
		agent.New("Bad", "b", agent.WithProvider(scripted.New(nil))),
	}

	c := NewConcurrent(nil, "m", agents)

	_, err := c.Run(context.Background(), "task")

	assert.ErrorIs(t, err, scripted.ErrExhausted)
}

func TestConcurrentEmitsEvents(t *testing.T) {
	agents := []agent.Agent{
		agent.New("A", "a", agent.WithProvider(scripted.New([]string{"one"}))),
		agent.New("B", "b", agent.WithProvider(scripted.New([]string{"two"}))),
	}

	var events []ConcurrentEvent

	c := NewConcurrent(nil, "m", agents, func(o *ConcurrentOptions) {
		o.OnEvent = func(ev ConcurrentEvent) { events = append(events, ev) }
	})

	_, err := c.Run(context.Background(), "task")
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, ConcurrentMessage, events[0].Kind)
	assert.Equal(t, ConcurrentMessage, events[1].Kind)
	assert.Equal(t, ConcurrentCompleted, events[2].Kind)
	assert.Equal(t, 2, events[2].Count)
}
