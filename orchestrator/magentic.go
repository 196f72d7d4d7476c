package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/provider"
)

// standardManagerInstructions is the system prompt of the built-in manager.
// It pins the three decision shapes the decision parser accepts.
const standardManagerInstructions = `You are the orchestration manager of a team of agents.
Each round you inspect the task, the roster and the transcript, then reply with exactly one JSON object in one of these shapes:
- Delegate work to an agent: {"delegate": {"agent": "<agent name>", "message": "<instructions for the agent>"}}
- Record progress without delegating: {"message": "<status note>"}
- Finish the task: {"complete": {"message": "<final result>"}}
Reply with the JSON object only. Do not add commentary outside the JSON.`

// MagenticDecisionKind discriminates manager decisions.
type MagenticDecisionKind string

const (
	// MagenticDelegate assigns the round to a named agent.
	MagenticDelegate MagenticDecisionKind = "delegate"
	// MagenticMessage records a progress note without delegating.
	MagenticMessage MagenticDecisionKind = "message"
	// MagenticComplete ends the run with a final result.
	MagenticComplete MagenticDecisionKind = "complete"
)

// MagenticDecision is one parsed manager reply.
type MagenticDecision struct {
	Kind    MagenticDecisionKind
	Agent   string
	Message string
}

// MagenticEventKind discriminates manager-loop events.
type MagenticEventKind string

const (
	// MagenticManagerDecision fires after each manager reply is parsed.
	MagenticManagerDecision MagenticEventKind = "manager_decision"
	// MagenticAgentResult fires after a delegated agent's turn.
	MagenticAgentResult MagenticEventKind = "agent_result"
	// MagenticCompleted fires once when the manager finishes the task.
	MagenticCompleted MagenticEventKind = "completed"
)

// MagenticEvent is one entry in the run's event log.
type MagenticEvent struct {
	Kind     MagenticEventKind
	Round    int
	Agent    string
	Decision MagenticDecisionKind
	Content  string
}

// MagenticResult is the outcome of one manager-delegate run.
type MagenticResult struct {
	RunID      string
	Final      string
	Rounds     int
	Transcript []core.ChatMessage
}

// MagenticOptions configures the manager loop.
type MagenticOptions struct {
	// MaxRounds caps manager rounds (default 12, minimum 1). Exhausting it
	// without a completion fails the run.
	MaxRounds int

	// ManagerInstructions overrides the built-in manager system prompt.
	ManagerInstructions string

	// ManagerModel overrides the model used for manager rounds.
	ManagerModel string

	Logger    logging.Logger
	Collector metrics.Collector
	OnEvent   func(MagenticEvent)
}

// Magentic drives a manager-delegate loop: each round a manager LLM call
// decides whether to delegate to an agent, record progress, or complete.
type Magentic struct {
	provider provider.Provider
	model    string
	agents   []agent.Agent
	opts     MagenticOptions
}

// NewMagentic creates a manager-delegate orchestrator.
func NewMagentic(p provider.Provider, model string, optFns ...func(o *MagenticOptions)) *Magentic {
	opts := MagenticOptions{
		MaxRounds:           12,
		ManagerInstructions: standardManagerInstructions,
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}

	return &Magentic{provider: p, model: model, opts: opts}
}

// RegisterAgent adds an agent to the roster. Duplicate names are rejected.
func (m *Magentic) RegisterAgent(ag agent.Agent) error {
	for _, existing := range m.agents {
		if existing.Name == ag.Name {
			return &InvalidManagerDecisionError{Reason: fmt.Sprintf("duplicate agent name %q", ag.Name)}
		}
	}

	m.agents = append(m.agents, ag)

	return nil
}

// Run drives the manager loop for one task.
func (m *Magentic) Run(ctx context.Context, task string) (*MagenticResult, error) {
	if len(m.agents) == 0 {
		return nil, ErrNoAgentsRegistered
	}

	runID := uuid.NewString()
	mm := metrics.NewAgentMetrics(runID, "magentic")

	transcript := []core.ChatMessage{core.User(task)}

	m.opts.Logger.Info("magentic.run.start", "run_id", runID, "agents", len(m.agents), "max_rounds", m.opts.MaxRounds)

	for round := 1; round <= m.opts.MaxRounds; round++ {
		decision, usage, err := m.managerRound(ctx, task, round, transcript)
		if err != nil {
			mm.RecordError("manager")
			mm.Finalize(round, false, 0)
			record(m.opts.Collector, mm)

			return nil, err
		}

		mm.RecordTokenUsage(usage)

		emit(m.opts.Logger, m.opts.OnEvent, MagenticEvent{Kind: MagenticManagerDecision, Round: round, Agent: decision.Agent, Decision: decision.Kind, Content: decision.Message})

		m.opts.Logger.Debug("magentic.round", "run_id", runID, "round", round, "decision", string(decision.Kind), "agent", decision.Agent)

		switch decision.Kind {
		case MagenticComplete:
			transcript = append(transcript, core.Assistant(decision.Message).WithName("manager"))

			emit(m.opts.Logger, m.opts.OnEvent, MagenticEvent{Kind: MagenticCompleted, Round: round, Content: decision.Message})

			mm.Finalize(round, true, len(decision.Message))
			record(m.opts.Collector, mm)

			m.opts.Logger.Info("magentic.run.complete", "run_id", runID, "rounds", round)

			return &MagenticResult{RunID: runID, Final: decision.Message, Rounds: round, Transcript: transcript}, nil

		case MagenticMessage:
			transcript = append(transcript, core.Assistant(decision.Message).WithName("manager"))

		case MagenticDelegate:
			delegate, ok := m.agentByName(decision.Agent)
			if !ok {
				mm.Finalize(round, false, 0)
				record(m.opts.Collector, mm)

				return nil, &UnknownAgentError{Name: decision.Agent}
			}

			if decision.Message != "" {
				transcript = append(transcript, core.Assistant(decision.Message).WithName("manager"))
			}

			turn, err := delegate.Execute(ctx, m.provider, m.model, transcript)
			if err != nil {
				mm.RecordError("provider")
				mm.Finalize(round, false, 0)
				record(m.opts.Collector, mm)

				return nil, err
			}

			mm.RecordTokenUsage(turn.Usage)

			output := turnOutput(turn)
			transcript = append(transcript, core.Assistant(output).WithName(delegate.Name))

			emit(m.opts.Logger, m.opts.OnEvent, MagenticEvent{Kind: MagenticAgentResult, Round: round, Agent: delegate.Name, Content: output})
		}
	}

	mm.Finalize(m.opts.MaxRounds, false, 0)
	record(m.opts.Collector, mm)

	return nil, ErrMaxRoundsReached
}

// managerRound performs one manager LLM call and parses the decision.
func (m *Magentic) managerRound(ctx context.Context, task string, round int, transcript []core.ChatMessage) (*MagenticDecision, *core.TokenUsage, error) {
	model := m.model
	if m.opts.ManagerModel != "" {
		model = m.opts.ManagerModel
	}

	messages := []core.ChatMessage{
		core.System(m.opts.ManagerInstructions),
		core.User(m.buildManagerPrompt(task, round, transcript)),
	}

	resp, err := m.provider.Complete(ctx, core.NewCompletionRequest(model, messages))
	if err != nil {
		return nil, nil, fmt.Errorf("manager round %d: %w", round, err)
	}

	decision, err := ParseManagerDecision(resp.Message.Content)
	if err != nil {
		return nil, resp.Usage, err
	}

	return decision, resp.Usage, nil
}

// buildManagerPrompt renders the per-round manager prompt: task, 1-based
// round number, roster and the accumulated transcript.
func (m *Magentic) buildManagerPrompt(task string, round int, transcript []core.ChatMessage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", task)
	fmt.Fprintf(&b, "Round: %d\n\n", round)

	b.WriteString("Agents:\n")
	for _, ag := range m.agents {
		description := ag.Description
		if description == "" {
			description = "No description provided."
		}
		fmt.Fprintf(&b, "- %s: %s\n", ag.Name, description)
	}

	b.WriteString("\nTranscript:\n")
	for _, msg := range transcript {
		b.WriteString(renderSpeaker(msg))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteByte('\n')
	}

	b.WriteString("\nProduce your JSON decision now.")

	return b.String()
}

// renderSpeaker formats a transcript entry's speaker label.
func renderSpeaker(msg core.ChatMessage) string {
	switch msg.Role {
	case core.RoleUser:
		return "User"
	case core.RoleSystem:
		return "System"
	case core.RoleAssistant:
		if msg.Name != "" {
			return "Assistant::" + msg.Name
		}
		return "Assistant"
	case core.RoleTool:
		if msg.Name != "" {
			return "Tool::" + msg.Name
		}
		return "Tool"
	default:
		return string(msg.Role)
	}
}

// ParseManagerDecision parses a manager reply. Unlike the agent action
// resolver it is deliberately strict: only the whole text or a fenced block
// may carry the JSON decision. Empty text is an invalid decision; non-JSON
// text degrades to a progress message.
func ParseManagerDecision(text string) (*MagenticDecision, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &InvalidManagerDecisionError{Reason: "empty manager response"}
	}

	if d, ok := parseDecisionJSON(trimmed); ok {
		return d, nil
	}

	for _, block := range managerFencedBlocks(text) {
		if d, ok := parseDecisionJSON(block); ok {
			return d, nil
		}
	}

	return &MagenticDecision{Kind: MagenticMessage, Message: trimmed}, nil
}

// parseDecisionJSON maps a JSON object onto one of the three decision
// shapes, honoring the documented field aliases.
func parseDecisionJSON(s string) (*MagenticDecision, bool) {
	if !strings.HasPrefix(s, "{") || !gjson.Valid(s) {
		return nil, false
	}

	doc := gjson.Parse(s)
	if !doc.IsObject() {
		return nil, false
	}

	if v, ok := firstKey(doc, "delegate", "delegate_agent", "call_agent"); ok {
		d := &MagenticDecision{Kind: MagenticDelegate}

		if v.IsObject() {
			d.Agent = strings.TrimSpace(pickString(v, "agent", "target_agent"))
			d.Message = strings.TrimSpace(pickString(v, "message", "task", "instruction"))
		} else {
			d.Agent = strings.TrimSpace(v.String())
		}

		if d.Agent == "" {
			return nil, false
		}

		return d, true
	}

	if v, ok := firstKey(doc, "message", "progress", "note", "summary", "respond", "status", "say"); ok {
		d := &MagenticDecision{Kind: MagenticMessage}

		if v.IsObject() {
			d.Message = strings.TrimSpace(pickString(v, "content", "text", "message"))
		} else {
			d.Message = strings.TrimSpace(v.String())
		}

		return d, true
	}

	if v, ok := firstKey(doc, "complete", "final", "finalize"); ok {
		d := &MagenticDecision{Kind: MagenticComplete}

		if v.IsObject() {
			d.Message = strings.TrimSpace(pickString(v, "message", "response", "result"))
		} else {
			d.Message = strings.TrimSpace(v.String())
		}

		return d, true
	}

	return nil, false
}

func firstKey(doc gjson.Result, keys ...string) (gjson.Result, bool) {
	for _, k := range keys {
		if v := doc.Get(k); v.Exists() {
			return v, true
		}
	}

	return gjson.Result{}, false
}

func pickString(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := doc.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}

	return ""
}

// managerFencedBlocks extracts triple-backtick block bodies, stripping a
// language tag line.
func managerFencedBlocks(text string) []string {
	var blocks []string

	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}

		rest = rest[start+3:]

		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}

		body := rest[:end]
		rest = rest[end+3:]

		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			tag := strings.TrimSpace(body[:nl])
			if tag != "" && !strings.HasPrefix(tag, "{") {
				body = body[nl+1:]
			}
		}

		body = strings.TrimSpace(body)
		if body != "" {
			blocks = append(blocks, body)
		}
	}

	return blocks
}

func (m *Magentic) agentByName(name string) (agent.Agent, bool) {
	for _, ag := range m.agents {
		if strings.EqualFold(ag.Name, name) {
			return ag, true
		}
	}

	return agent.Agent{}, false
}
