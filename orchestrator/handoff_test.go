package orchestrator

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/provider/scripted"
)

func travelWeatherRoster() []agent.Agent {
	return []agent.Agent{
		agent.New("Travel", "You plan trips."),
		agent.New("Weather", "You forecast weather."),
	}
}

func TestHandoffJSONDecisionSwitchesAgent(t *testing.T) {
	p := scripted.New([]string{
		`{"action": "hand_off", "target": "Weather", "message": "check the forecast"}`,
		"Forecast looks clear.",
	})

	var events []HandoffEvent

	h := NewHandoff(p, "m", travelWeatherRoster(), func(o *HandoffOptions) {
		o.OnEvent = func(ev HandoffEvent) { events = append(events, ev) }
	})

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)
	assert.Equal(t, 4, sess.RemainingHandoffs())

	reply, err := sess.Send(context.Background(), "plan a trip to Bergen")
	require.NoError(t, err)

	assert.Equal(t, "Weather", reply.Agent)
	assert.Equal(t, "Forecast looks clear.", reply.Content)
	assert.False(t, reply.Completed)
	assert.Equal(t, "Weather", sess.ActiveAgent())
	assert.Equal(t, 3, sess.RemainingHandoffs())

	var handoffs []HandoffEvent
	for _, ev := range events {
		if ev.Kind == HandoffOccurred {
			handoffs = append(handoffs, ev)
		}
	}
	require.Len(t, handoffs, 1)
	assert.Equal(t, "Travel", handoffs[0].From)
	assert.Equal(t, "Weather", handoffs[0].To)
	assert.Equal(t, SourceParser, handoffs[0].Source)
}

// toolCallProvider replies with canned messages that may carry tool calls.
type toolCallProvider struct {
	responses []core.ChatMessage
	index     int
}

func (p *toolCallProvider) Complete(context.Context, core.CompletionRequest) (*core.CompletionResponse, error) {
	msg := p.responses[p.index]
	if p.index < len(p.responses)-1 {
		p.index++
	}

	return &core.CompletionResponse{Message: msg}, nil
}

func (p *toolCallProvider) Name() string { return "toolcall" }

func TestHandoffToolDecisionFuzzyTarget(t *testing.T) {
	p := &toolCallProvider{responses: []core.ChatMessage{
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{{
				ID:   "call-1",
				Type: "function",
				Function: core.ToolCallFunction{
					Name:      "handoff",
					Arguments: `{"target": "wether", "message": "over to you"}`,
				},
			}},
		},
		core.Assistant("Sunny all week."),
	}}

	var events []HandoffEvent

	h := NewHandoff(p, "m", travelWeatherRoster(), func(o *HandoffOptions) {
		o.OnEvent = func(ev HandoffEvent) { events = append(events, ev) }
	})

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)

	reply, err := sess.Send(context.Background(), "what about the weather?")
	require.NoError(t, err)

	assert.Equal(t, "Weather", reply.Agent)
	assert.Equal(t, "Sunny all week.", reply.Content)

	var sources []DecisionSource
	for _, ev := range events {
		if ev.Kind == HandoffOccurred {
			sources = append(sources, ev.Source)
		}
	}
	assert.Equal(t, []DecisionSource{SourceTool}, sources)
}

func TestHandoffCompleteToolEndsConversation(t *testing.T) {
	p := &toolCallProvider{responses: []core.ChatMessage{
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{{
				ID:   "call-1",
				Type: "function",
				Function: core.ToolCallFunction{
					Name:      "complete",
					Arguments: `{"message": "itinerary booked"}`,
				},
			}},
		},
	}}

	h := NewHandoff(p, "m", travelWeatherRoster())

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)

	reply, err := sess.Send(context.Background(), "book it")
	require.NoError(t, err)

	assert.True(t, reply.Completed)
	assert.Equal(t, "itinerary booked", reply.Content)
}

func TestHandoffRuleOverridesRespond(t *testing.T) {
	p := scripted.New([]string{
		"This sounds like a billing question to me.",
		"Your invoice total is 42.",
	})

	roster := []agent.Agent{
		agent.New("Support", "General support."),
		agent.New("Billing", "Invoices."),
	}

	var events []HandoffEvent

	h := NewHandoff(p, "m", roster, func(o *HandoffOptions) {
		o.Rules = []Rule{{
			ID:      "billing-keywords",
			Matcher: KeywordsAny{"billing", "invoice"},
			Target:  "Billing",
		}}
		o.OnEvent = func(ev HandoffEvent) { events = append(events, ev) }
	})

	sess, err := h.StartSession("Support")
	require.NoError(t, err)

	reply, err := sess.Send(context.Background(), "why was I charged twice?")
	require.NoError(t, err)

	assert.Equal(t, "Billing", reply.Agent)
	assert.Equal(t, "Your invoice total is 42.", reply.Content)

	var sources []DecisionSource
	for _, ev := range events {
		if ev.Kind == HandoffOccurred {
			sources = append(sources, ev.Source)
		}
	}
	assert.Equal(t, []DecisionSource{SourceRule}, sources)
}

func TestHandoffTargetResolution(t *testing.T) {
	h := NewHandoff(scripted.New(nil), "m", travelWeatherRoster(), func(o *HandoffOptions) {
		o.Aliases = map[string]string{"bookings": "Travel"}
	})

	tests := []struct {
		target string
		active string
		want   string
	}{
		{"weather", "Travel", "Weather"}, // exact, case-insensitive
		{"trav", "Weather", "Travel"},    // prefix
		{"wether", "Travel", "Weather"},  // fuzzy, distance 1
		{"@Weather", "Travel", "Weather"},
		{"bookings", "Weather", "Travel"}, // alias
	}

	for _, tt := range tests {
		got, err := h.resolveTarget(tt.target, tt.active)
		require.NoError(t, err, "target %q", tt.target)
		assert.Equal(t, tt.want, got, "target %q", tt.target)
	}
}

func TestHandoffSelfHandoffRejected(t *testing.T) {
	h := NewHandoff(scripted.New(nil), "m", travelWeatherRoster())

	_, err := h.resolveTarget("Travel", "Travel")

	var decisionErr *InvalidManagerDecisionError
	assert.ErrorAs(t, err, &decisionErr)
}

func TestHandoffUnresolvableTarget(t *testing.T) {
	h := NewHandoff(scripted.New(nil), "m", travelWeatherRoster())

	_, err := h.resolveTarget("zzzzzzzzzz", "Travel")

	var unknownErr *UnknownAgentError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestHandoffBudgetExhaustion(t *testing.T) {
	p := scripted.New([]string{
		`{"action": "hand_off", "target": "Weather"}`,
	})

	h := NewHandoff(p, "m", travelWeatherRoster(), WithMaxHandoffs(0))

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), "go")

	assert.ErrorIs(t, err, ErrMaxHandoffsReached)
	// The budget check fires before switching.
	assert.Equal(t, "Travel", sess.ActiveAgent())
}

func TestHandoffUnknownEntryAgent(t *testing.T) {
	h := NewHandoff(scripted.New(nil), "m", travelWeatherRoster())

	_, err := h.StartSession("Ghost")

	var unknownErr *UnknownAgentError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestHandoffEmptyRoster(t *testing.T) {
	h := NewHandoff(scripted.New(nil), "m", nil)

	_, err := h.StartSession("Travel")

	assert.ErrorIs(t, err, ErrNoAgentsRegistered)
}

// slowProvider blocks until the context is cancelled.
type slowProvider struct{}

func (slowProvider) Complete(ctx context.Context, _ core.CompletionRequest) (*core.CompletionResponse, error) {
	select {
	case <-time.After(5 * time.Second):
		return &core.CompletionResponse{Message: core.Assistant("too late")}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (slowProvider) Name() string { return "slow" }

func TestHandoffTurnTimeout(t *testing.T) {
	h := NewHandoff(slowProvider{}, "m", travelWeatherRoster(), func(o *HandoffOptions) {
		o.LLMTimeout = 20 * time.Millisecond
	})

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrProviderTimeout)
}

func TestHandoffMaxRoundsReached(t *testing.T) {
	// Agents keep bouncing the conversation between each other.
	p := scripted.New([]string{
		`{"action": "hand_off", "target": "Weather"}`,
		`{"action": "hand_off", "target": "Travel"}`,
		`{"action": "hand_off", "target": "Weather"}`,
	})

	h := NewHandoff(p, "m", travelWeatherRoster(), WithUnlimitedHandoffs(), func(o *HandoffOptions) {
		o.MaxRounds = 3
	})

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), "loop forever")

	assert.ErrorIs(t, err, ErrMaxRoundsReached)
}

func TestHandoffForceHandoffToolIgnoresTextHandoffs(t *testing.T) {
	p := scripted.New([]string{
		`{"action": "hand_off", "target": "Weather", "message": "over to you"}`,
	})

	h := NewHandoff(p, "m", travelWeatherRoster(), func(o *HandoffOptions) {
		o.ForceHandoffTool = true
	})

	sess, err := h.StartSession("Travel")
	require.NoError(t, err)

	reply, err := sess.Send(context.Background(), "hi")
	require.NoError(t, err)

	// The text-sourced handoff was downgraded to a plain reply.
	assert.Equal(t, "Travel", reply.Agent)
	assert.False(t, reply.Completed)
	assert.Equal(t, "Travel", sess.ActiveAgent())
}

func TestHandoffMatchers(t *testing.T) {
	assert.True(t, KeywordsAny{"refund", "invoice"}.Matches("please refund me"))
	assert.False(t, KeywordsAny{"refund"}.Matches("hello"))

	assert.True(t, KeywordsAll{"flight", "hotel"}.Matches("book a flight and a hotel"))
	assert.False(t, KeywordsAll{"flight", "hotel"}.Matches("book a flight"))
	assert.False(t, KeywordsAll{}.Matches("anything"))

	assert.True(t, RegexMatcher{Pattern: regexp.MustCompile(`(?i)\border\s+#\d+`)}.Matches("Order #42 missing"))

	assert.True(t, PredicateMatcher(func(text string) bool { return len(text) > 3 }).Matches("long enough"))
}
