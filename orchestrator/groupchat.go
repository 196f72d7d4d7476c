package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/provider"
)

// GroupChatManager decides who speaks next in a group chat. Implementations
// are interchangeable strategies, not subclasses.
type GroupChatManager interface {
	// OnStart returns seed messages appended after the task message.
	OnStart(task string) []core.ChatMessage

	// SelectNextAgent names the next speaker. An empty name is an invalid
	// decision.
	SelectNextAgent(transcript []core.ChatMessage, roster []agent.Agent) (string, error)

	// ShouldTerminate ends the chat before the round executes.
	ShouldTerminate(transcript []core.ChatMessage, round int) bool

	// MaxRounds caps the chat; 0 means unlimited. Reaching the cap ends the
	// chat normally.
	MaxRounds() int
}

// UserInputRequester is an optional manager capability: returning true
// pauses the chat so the caller-provided input callback can inject a user
// message before the round runs.
type UserInputRequester interface {
	ShouldRequestUserInput(transcript []core.ChatMessage, round int) bool
}

// RoundRobinOptions configures the default manager.
type RoundRobinOptions struct {
	MaxRounds int

	// UserPromptFrequency requests user input every n rounds (0 = never).
	UserPromptFrequency int
}

// RoundRobinManager cycles through the roster in order and stops after a
// fixed number of rounds.
type RoundRobinManager struct {
	opts  RoundRobinOptions
	index int
}

// NewRoundRobinManager creates the default manager (6 rounds, no user
// prompts).
func NewRoundRobinManager(optFns ...func(o *RoundRobinOptions)) *RoundRobinManager {
	opts := RoundRobinOptions{MaxRounds: 6}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &RoundRobinManager{opts: opts}
}

// OnStart returns no seed messages.
func (m *RoundRobinManager) OnStart(string) []core.ChatMessage { return nil }

// SelectNextAgent rotates through the roster.
func (m *RoundRobinManager) SelectNextAgent(_ []core.ChatMessage, roster []agent.Agent) (string, error) {
	if len(roster) == 0 {
		return "", nil
	}

	name := roster[m.index%len(roster)].Name
	m.index++

	return name, nil
}

// ShouldTerminate never ends the chat early; the round cap does.
func (m *RoundRobinManager) ShouldTerminate([]core.ChatMessage, int) bool { return false }

// MaxRounds reports the configured cap.
func (m *RoundRobinManager) MaxRounds() int { return m.opts.MaxRounds }

// ShouldRequestUserInput pauses every UserPromptFrequency rounds.
func (m *RoundRobinManager) ShouldRequestUserInput(_ []core.ChatMessage, round int) bool {
	freq := m.opts.UserPromptFrequency

	return freq > 0 && round > 0 && round%freq == 0
}

// GroupChatEventKind discriminates group-chat events.
type GroupChatEventKind string

const (
	// GroupChatSpeakerSelected fires when the manager picks the next speaker.
	GroupChatSpeakerSelected GroupChatEventKind = "speaker_selected"
	// GroupChatMessage fires after each spoken turn.
	GroupChatMessage GroupChatEventKind = "message"
	// GroupChatUserInputRequested fires before the input callback runs.
	GroupChatUserInputRequested GroupChatEventKind = "user_input_requested"
	// GroupChatCompleted fires once when the chat ends.
	GroupChatCompleted GroupChatEventKind = "completed"
)

// GroupChatEvent is one entry in the chat's event log.
type GroupChatEvent struct {
	Kind    GroupChatEventKind
	Agent   string
	Round   int
	Content string
}

// GroupChatResult is the outcome of one chat run.
type GroupChatResult struct {
	RunID      string
	Final      string
	Rounds     int
	Transcript []core.ChatMessage
}

// GroupChatOptions configures the chat orchestrator.
type GroupChatOptions struct {
	Logger    logging.Logger
	Collector metrics.Collector
	OnEvent   func(GroupChatEvent)

	// UserInput supplies a user message when the manager requests one.
	UserInput func(transcript []core.ChatMessage) (string, error)
}

// GroupChat drives a manager-selected turn order over a roster. Complete
// from any speaker ends the run early.
type GroupChat struct {
	provider provider.Provider
	model    string
	agents   []agent.Agent
	manager  GroupChatManager
	opts     GroupChatOptions
}

// NewGroupChat creates a chat over the roster driven by the given manager.
// A nil manager defaults to round-robin.
func NewGroupChat(p provider.Provider, model string, agents []agent.Agent, manager GroupChatManager, optFns ...func(o *GroupChatOptions)) *GroupChat {
	opts := GroupChatOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if manager == nil {
		manager = NewRoundRobinManager()
	}

	return &GroupChat{provider: p, model: model, agents: agents, manager: manager, opts: opts}
}

// Run executes the chat for one task.
func (g *GroupChat) Run(ctx context.Context, task string) (*GroupChatResult, error) {
	if len(g.agents) == 0 {
		return nil, ErrNoAgentsRegistered
	}

	runID := uuid.NewString()
	m := metrics.NewAgentMetrics(runID, "group_chat")

	transcript := []core.ChatMessage{core.User(task)}
	transcript = append(transcript, g.manager.OnStart(task)...)

	final := ""
	round := 0

	g.opts.Logger.Info("groupchat.run.start", "run_id", runID, "agents", len(g.agents))

	for {
		if g.manager.ShouldTerminate(transcript, round) {
			break
		}

		if max := g.manager.MaxRounds(); max > 0 && round >= max {
			break
		}

		if requester, ok := g.manager.(UserInputRequester); ok && g.opts.UserInput != nil {
			if requester.ShouldRequestUserInput(transcript, round) {
				emit(g.opts.Logger, g.opts.OnEvent, GroupChatEvent{Kind: GroupChatUserInputRequested, Round: round})

				input, err := g.opts.UserInput(transcript)
				if err != nil {
					return nil, fmt.Errorf("user input: %w", err)
				}

				if input != "" {
					transcript = append(transcript, core.User(input))
				}
			}
		}

		name, err := g.manager.SelectNextAgent(transcript, g.agents)
		if err != nil {
			return nil, fmt.Errorf("select next agent: %w", err)
		}

		if name == "" {
			return nil, &InvalidManagerDecisionError{Reason: "manager selected no agent"}
		}

		speaker, ok := g.agentByName(name)
		if !ok {
			return nil, &UnknownAgentError{Name: name}
		}

		emit(g.opts.Logger, g.opts.OnEvent, GroupChatEvent{Kind: GroupChatSpeakerSelected, Agent: speaker.Name, Round: round})

		turn, err := speaker.Execute(ctx, g.provider, g.model, transcript)
		if err != nil {
			m.RecordError("provider")
			m.Finalize(round, false, 0)
			record(g.opts.Collector, m)

			return nil, err
		}

		m.RecordTokenUsage(turn.Usage)

		content := turnOutput(turn)
		transcript = append(transcript, core.Assistant(content).WithName(speaker.Name))
		round++

		emit(g.opts.Logger, g.opts.OnEvent, GroupChatEvent{Kind: GroupChatMessage, Agent: speaker.Name, Round: round, Content: content})

		if _, done := turn.Action.(agent.Complete); done {
			final = content

			emit(g.opts.Logger, g.opts.OnEvent, GroupChatEvent{Kind: GroupChatCompleted, Agent: speaker.Name, Round: round, Content: final})

			m.Finalize(round, true, len(final))
			record(g.opts.Collector, m)

			return &GroupChatResult{RunID: runID, Final: final, Rounds: round, Transcript: transcript}, nil
		}

		final = content
	}

	emit(g.opts.Logger, g.opts.OnEvent, GroupChatEvent{Kind: GroupChatCompleted, Round: round, Content: final})

	m.Finalize(round, true, len(final))
	record(g.opts.Collector, m)

	g.opts.Logger.Info("groupchat.run.complete", "run_id", runID, "rounds", round)

	return &GroupChatResult{RunID: runID, Final: final, Rounds: round, Transcript: transcript}, nil
}

func (g *GroupChat) agentByName(name string) (agent.Agent, bool) {
	for _, ag := range g.agents {
		if ag.Name == name {
			return ag, true
		}
	}

	return agent.Agent{}, false
}
