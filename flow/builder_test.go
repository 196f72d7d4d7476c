package flow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/function"
	"github.com/hupe1980/agentweave/orchestrator"
	"github.com/hupe1980/agentweave/provider/scripted"
)

func TestBuildAgentsResolvesPrompts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("hello from file"), 0o644))

	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: a1
    model: m1
    system_prompt: prompt.txt
  - id: a2
    model: m2
    system_prompt: inline prompt
  - id: a3
    model: m3
    system_prompt: greeting
prompts:
  - id: greeting
    text: hello from prompt table
flows:
  - id: main
    entry: n1
    nodes:
      - id: n1
        type: input
`), func(o *BuilderOptions) { o.BaseDir = dir })
	require.NoError(t, err)

	agents, err := builder.BuildAgents(nil)
	require.NoError(t, err)

	require.Len(t, agents, 3)
	assert.Equal(t, "hello from file", agents["a1"].Instructions)
	assert.Equal(t, "inline prompt", agents["a2"].Instructions)
	assert.Equal(t, "hello from prompt table", agents["a3"].Instructions)
	assert.Equal(t, "m1", agents["a1"].Model)
}

func TestBuildAgentsMergesToolRegistries(t *testing.T) {
	reg := function.NewRegistry()
	require.NoError(t, reg.Register(function.New(
		"echo",
		"Echo the input.",
		map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (any, error) { return args["text"], nil },
	)))

	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: a1
    model: m
    tools: [echo_tool, missing_tool]
flows:
  - id: main
    entry: n1
    nodes:
      - id: n1
        type: input
`))
	require.NoError(t, err)

	agents, err := builder.BuildAgents(map[string]*function.Registry{"echo_tool": reg})
	require.NoError(t, err)

	require.NotNil(t, agents["a1"].Functions)
	assert.Equal(t, 1, agents["a1"].Functions.Len())
}

func TestBuildSequentialRunsLinearFlow(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: first
    model: scripted-model
    system_prompt: first agent
  - id: second
    model: scripted-model
    system_prompt: second agent
flows:
  - id: main
    entry: start
    nodes:
      - id: start
        type: input
      - id: a1
        type: agent
        agent: first
      - id: a2
        type: agent
        agent: second
      - id: end
        type: output
    edges:
      - from: start
        to: a1
      - from: a1
        to: a2
      - from: a2
        to: end
`))
	require.NoError(t, err)

	p := scripted.New([]string{"hello", "done"})

	seq, err := builder.BuildSequential(p, "main", nil, nil)
	require.NoError(t, err)

	result, err := seq.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, "done", result.Final)
	require.Len(t, result.Transcript, 3)
	assert.Equal(t, "first", result.Transcript[1].Name)
	assert.Equal(t, "second", result.Transcript[2].Name)
}

func TestBuildSequentialRejectsFlowWithoutAgentSteps(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
flows:
  - id: branching
    entry: input
    nodes:
      - id: input
        type: input
      - id: decide
        type: decision
      - id: out
        type: output
    edges:
      - from: input
        to: decide
      - from: decide
        to: out
`))
	require.NoError(t, err)

	_, err = builder.BuildSequential(scripted.New(nil), "branching", nil, nil)

	var missingErr *MissingOutputError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, "branching", missingErr.Flow)
}

func TestBuildSequentialAppliesStepParameters(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: a1
    model: base-model
flows:
  - id: main
    entry: node
    nodes:
      - id: node
        type: agent
        agent: a1
        parameters:
          model: step-model
          temperature: 0.1
`))
	require.NoError(t, err)

	var captured []core.CompletionRequest
	p := scripted.New([]string{"out"}, func(o *scripted.Options) {
		o.OnRequest = func(req core.CompletionRequest) { captured = append(captured, req) }
	})

	seq, err := builder.BuildSequential(p, "main", nil, nil)
	require.NoError(t, err)

	_, err = seq.Run(context.Background(), "task")
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.Equal(t, "step-model", captured[0].Model)
	require.NotNil(t, captured[0].Temperature)
	assert.Equal(t, 0.1, *captured[0].Temperature)
}

func TestBuildHandoffAppliesRulesAndAliases(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: concierge
    model: scripted-model
    system_prompt: frontdesk
  - id: weather
    model: scripted-model
    system_prompt: forecast
flows:
  - id: main
    entry: start
    handoff:
      aliases:
        - alias: wx
          target: weather
      rules:
        - id: weather_rule
          target: wx
          matcher: keywords_any
          keywords: ["weather"]
      max_handoffs: 1
      max_rounds: 5
      llm_timeout_ms: 5000
    nodes:
      - id: start
        type: input
      - id: concierge_node
        type: agent
        agent: concierge
      - id: weather_node
        type: agent
        agent: weather
      - id: end
        type: output
`))
	require.NoError(t, err)

	p := scripted.New([]string{"the weather is needed", "clear skies"})

	var events []orchestrator.HandoffEvent

	h, err := builder.BuildHandoff(p, "main", nil, func(o *orchestrator.HandoffOptions) {
		o.OnEvent = func(ev orchestrator.HandoffEvent) { events = append(events, ev) }
	})
	require.NoError(t, err)

	sess, err := h.StartSession("concierge")
	require.NoError(t, err)

	reply, err := sess.Send(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "weather", reply.Agent)
	assert.Equal(t, "clear skies", reply.Content)

	var handoffTo string
	for _, ev := range events {
		if ev.Kind == orchestrator.HandoffOccurred {
			handoffTo = ev.To
		}
	}
	assert.Equal(t, "weather", handoffTo)
}

func TestBuildHandoffRejectsBadRules(t *testing.T) {
	build := func(rule string) error {
		builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: a1
    model: m
flows:
  - id: main
    entry: node
    handoff:
      rules:
        - id: bad
          target: a1
` + rule + `
    nodes:
      - id: node
        type: agent
        agent: a1
`))
		require.NoError(t, err)

		_, err = builder.BuildHandoff(scripted.New(nil), "main", nil)
		return err
	}

	var vErr *ValidationError
	assert.ErrorAs(t, build("          matcher: telepathy"), &vErr)
	assert.ErrorAs(t, build("          matcher: regex\n          pattern: \"([\""), &vErr)
}

func TestBuildGroupChatAppliesSettings(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: speaker
    model: scripted-model
    system_prompt: chat
flows:
  - id: main
    entry: start
    group_chat:
      maximum_rounds: 2
      user_prompt_frequency: 1
    nodes:
      - id: start
        type: input
      - id: talker
        type: agent
        agent: speaker
      - id: end
        type: output
`))
	require.NoError(t, err)

	p := scripted.New([]string{"first", "second"})

	prompts := 0

	chat, err := builder.BuildGroupChat(p, "main", nil, func(o *orchestrator.GroupChatOptions) {
		o.UserInput = func([]core.ChatMessage) (string, error) {
			prompts++
			return "user input", nil
		}
	})
	require.NoError(t, err)

	result, err := chat.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, "second", result.Final)
	assert.Equal(t, 1, prompts)
}

func TestBuildConcurrentCollectsRoster(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: a1
    model: scripted-model
    system_prompt: one
  - id: a2
    model: scripted-model
    system_prompt: two
flows:
  - id: main
    entry: start
    nodes:
      - id: start
        type: input
      - id: agent1
        type: agent
        agent: a1
      - id: agent2
        type: agent
        agent: a2
      - id: end
        type: output
`))
	require.NoError(t, err)

	p := scripted.New([]string{"r1", "r2"})

	c, err := builder.BuildConcurrent(p, "main", nil)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Len(t, result.Results, 2)
}

func TestBuildMagenticRegistersRoster(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
agents:
  - id: researcher
    model: scripted-model
    description: Finds facts.
flows:
  - id: main
    entry: start
    nodes:
      - id: start
        type: input
      - id: node
        type: agent
        agent: researcher
      - id: end
        type: output
`))
	require.NoError(t, err)

	p := scripted.New([]string{
		`{"delegate": {"agent": "researcher", "message": "go"}}`,
		"facts",
		`{"complete": {"message": "done"}}`,
	})

	m, err := builder.BuildMagentic(p, "main", nil)
	require.NoError(t, err)

	result, err := m.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, "done", result.Final)
	assert.Equal(t, 2, result.Rounds)
}

func TestBuildUnknownFlowFails(t *testing.T) {
	builder, err := NewBuilderFromYAML([]byte(`
flows:
  - id: main
    entry: start
    nodes:
      - id: start
        type: input
`))
	require.NoError(t, err)

	_, err = builder.BuildConcurrent(scripted.New(nil), "missing", nil)

	var flowErr *UnknownFlowError
	assert.ErrorAs(t, err, &flowErr)
}
