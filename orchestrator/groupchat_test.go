package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/provider/scripted"
)

// fixedManager always selects the same agent name.
type fixedManager struct {
	name string
}

func (m *fixedManager) OnStart(string) []core.ChatMessage { return nil }
func (m *fixedManager) SelectNextAgent([]core.ChatMessage, []agent.Agent) (string, error) {
	return m.name, nil
}
func (m *fixedManager) ShouldTerminate([]core.ChatMessage, int) bool { return false }
func (m *fixedManager) MaxRounds() int                               { return 3 }

func TestGroupChatRotatesBetweenAgents(t *testing.T) {
	p := scripted.New([]string{"first", "second", "third", "fourth"})

	chat := NewGroupChat(p, "m", []agent.Agent{
		agent.New("Ada", "a"),
		agent.New("Bob", "b"),
	}, NewRoundRobinManager(func(o *RoundRobinOptions) { o.MaxRounds = 4 }))

	result, err := chat.Run(context.Background(), "discuss")
	require.NoError(t, err)

	assert.Equal(t, 4, result.Rounds)
	require.Len(t, result.Transcript, 5)
	assert.Equal(t, "Ada", result.Transcript[1].Name)
	assert.Equal(t, "Bob", result.Transcript[2].Name)
	assert.Equal(t, "Ada", result.Transcript[3].Name)
	assert.Equal(t, "Bob", result.Transcript[4].Name)
	assert.Equal(t, "fourth", result.Final)
}

func TestGroupChatCompleteEndsRunEarly(t *testing.T) {
	p := scripted.New([]string{
		"still thinking",
		`{"action": "complete", "message": "we agreed"}`,
	})

	chat := NewGroupChat(p, "m", []agent.Agent{
		agent.New("Ada", "a"),
		agent.New("Bob", "b"),
	}, nil)

	result, err := chat.Run(context.Background(), "discuss")
	require.NoError(t, err)

	assert.Equal(t, "we agreed", result.Final)
	assert.Equal(t, 2, result.Rounds)
	require.Len(t, result.Transcript, 3)
}

func TestGroupChatErrorsWhenNoAgents(t *testing.T) {
	chat := NewGroupChat(scripted.New(nil), "m", nil, nil)

	_, err := chat.Run(context.Background(), "task")

	assert.ErrorIs(t, err, ErrNoAgentsRegistered)
}

func TestGroupChatUnknownSpeakerIsHardError(t *testing.T) {
	chat := NewGroupChat(scripted.New([]string{"x"}), "m", []agent.Agent{
		agent.New("Ada", "a"),
	}, &fixedManager{name: "Ghost"})

	_, err := chat.Run(context.Background(), "task")

	var unknownErr *UnknownAgentError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "Ghost", unknownErr.Name)
}

func TestGroupChatEmptySelectionIsInvalidDecision(t *testing.T) {
	chat := NewGroupChat(scripted.New([]string{"x"}), "m", []agent.Agent{
		agent.New("Ada", "a"),
	}, &fixedManager{name: ""})

	_, err := chat.Run(context.Background(), "task")

	var decisionErr *InvalidManagerDecisionError
	assert.ErrorAs(t, err, &decisionErr)
}

func TestGroupChatInjectsUserInput(t *testing.T) {
	p := scripted.New([]string{"r1", "r2", "r3", "r4"})

	manager := NewRoundRobinManager(func(o *RoundRobinOptions) {
		o.MaxRounds = 4
		o.UserPromptFrequency = 2
	})

	var events []GroupChatEvent

	chat := NewGroupChat(p, "m", []agent.Agent{
		agent.New("Ada", "a"),
		agent.New("Bob", "b"),
	}, manager, func(o *GroupChatOptions) {
		o.OnEvent = func(ev GroupChatEvent) { events = append(events, ev) }
		o.UserInput = func([]core.ChatMessage) (string, error) {
			return "please wrap up", nil
		}
	})

	result, err := chat.Run(context.Background(), "discuss")
	require.NoError(t, err)

	var userMessages []string
	for _, msg := range result.Transcript {
		if msg.Role == core.RoleUser {
			userMessages = append(userMessages, msg.Content)
		}
	}

	// The task message plus injected input at rounds 2 and 4.
	assert.Equal(t, []string{"discuss", "please wrap up", "please wrap up"}, userMessages)

	requested := 0
	for _, ev := range events {
		if ev.Kind == GroupChatUserInputRequested {
			requested++
		}
	}
	assert.Equal(t, 2, requested)
}

func TestRoundRobinManagerRotation(t *testing.T) {
	m := NewRoundRobinManager()
	roster := []agent.Agent{agent.New("A", ""), agent.New("B", ""), agent.New("C", "")}

	var picks []string
	for i := 0; i < 5; i++ {
		name, err := m.SelectNextAgent(nil, roster)
		require.NoError(t, err)
		picks = append(picks, name)
	}

	assert.Equal(t, []string{"A", "B", "C", "A", "B"}, picks)
	assert.Equal(t, 6, m.MaxRounds())
}
