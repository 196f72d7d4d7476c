package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/function"
	"github.com/hupe1980/agentweave/internal/util"
	"github.com/hupe1980/agentweave/logging"
	"github.com/hupe1980/agentweave/metrics"
	"github.com/hupe1980/agentweave/provider"
	"github.com/hupe1980/agentweave/state"
)

// fuzzyThreshold is the maximum edit distance accepted when resolving a
// handoff target against the roster.
const fuzzyThreshold = 3

// DecisionSource records where a handoff decision came from.
type DecisionSource string

const (
	// SourceParser means the action was resolved from the reply text.
	SourceParser DecisionSource = "parser"
	// SourceRule means a deterministic rule overrode a plain respond.
	SourceRule DecisionSource = "rule"
	// SourceTool means the internal handoff/complete tool produced it.
	SourceTool DecisionSource = "tool"
)

// Matcher tests agent reply text for a deterministic routing rule.
type Matcher interface {
	Matches(text string) bool
}

// KeywordsAny matches when any keyword occurs (case-insensitive).
type KeywordsAny []string

// Matches implements Matcher.
func (k KeywordsAny) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range k {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}

	return false
}

// KeywordsAll matches when every keyword occurs (case-insensitive).
type KeywordsAll []string

// Matches implements Matcher.
func (k KeywordsAll) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range k {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}

	return len(k) > 0
}

// RegexMatcher matches against a compiled pattern.
type RegexMatcher struct {
	Pattern *regexp.Regexp
}

// Matches implements Matcher.
func (r RegexMatcher) Matches(text string) bool {
	return r.Pattern != nil && r.Pattern.MatchString(text)
}

// PredicateMatcher adapts an arbitrary predicate.
type PredicateMatcher func(text string) bool

// Matches implements Matcher.
func (p PredicateMatcher) Matches(text string) bool { return p(text) }

// Rule overrides a plain respond into a handoff when its matcher fires.
// Rules never override an explicit handoff or completion.
type Rule struct {
	ID      string
	Matcher Matcher
	Target  string
	Message string
}

// HandoffEventKind discriminates handoff session events.
type HandoffEventKind string

const (
	// HandoffTurnStarted fires before each turn of the active agent.
	HandoffTurnStarted HandoffEventKind = "turn_started"
	// HandoffOccurred fires when the active agent switches.
	HandoffOccurred HandoffEventKind = "handoff"
	// HandoffMessage fires when the active agent replies to the user.
	HandoffMessage HandoffEventKind = "message"
	// HandoffCompleted fires when the conversation is completed.
	HandoffCompleted HandoffEventKind = "completed"
)

// HandoffEvent is one entry in the session's event log.
type HandoffEvent struct {
	Kind    HandoffEventKind
	Agent   string
	From    string
	To      string
	Round   int
	Source  DecisionSource
	Content string
}

// HandoffOptions configures the handoff orchestrator.
type HandoffOptions struct {
	// MaxHandoffs bounds agent switches per session; nil means unlimited.
	MaxHandoffs *int

	// MaxRounds bounds the turn loop inside one Send call.
	MaxRounds int

	// LLMTimeout bounds each provider call; exceeding it fails the run with
	// ErrProviderTimeout.
	LLMTimeout time.Duration

	// ForceHandoffTool ignores handoffs resolved from reply text; only the
	// internal handoff tool may switch agents.
	ForceHandoffTool bool

	// Aliases maps alternative target spellings to roster names.
	Aliases map[string]string

	// Rules are deterministic routing overrides, checked in order.
	Rules []Rule

	// State is an optional shared store exposed to the session.
	State state.Store

	Logger    logging.Logger
	Collector metrics.Collector
	OnEvent   func(HandoffEvent)
}

// WithMaxHandoffs caps agent switches per session.
func WithMaxHandoffs(n int) func(o *HandoffOptions) {
	return func(o *HandoffOptions) { o.MaxHandoffs = &n }
}

// WithUnlimitedHandoffs removes the handoff budget.
func WithUnlimitedHandoffs() func(o *HandoffOptions) {
	return func(o *HandoffOptions) { o.MaxHandoffs = nil }
}

// Handoff coordinates peer-to-peer delegation: a single active agent per
// session, switched by explicit handoff decisions.
type Handoff struct {
	provider provider.Provider
	model    string
	agents   []agent.Agent
	internal *function.Registry
	opts     HandoffOptions
}

// NewHandoff creates a handoff orchestrator over the roster (insertion
// order preserved). Defaults: 4 handoffs, 32 rounds per send, 60s per turn.
func NewHandoff(p provider.Provider, model string, agents []agent.Agent, optFns ...func(o *HandoffOptions)) *Handoff {
	defaultBudget := 4
	opts := HandoffOptions{
		MaxHandoffs: &defaultBudget,
		MaxRounds:   32,
		LLMTimeout:  60 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handoff{
		provider: p,
		model:    model,
		agents:   agents,
		internal: internalFunctions(),
		opts:     opts,
	}
}

// internalFunctions builds the handoff/complete tools that are always
// advertised during handoff turns. Their results round-trip through the
// action resolver as JSON envelopes.
func internalFunctions() *function.Registry {
	reg := function.NewRegistry()

	_ = reg.Register(function.New(
		"handoff",
		"Hand the conversation off to another agent.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target":  map[string]any{"type": "string", "description": "Name of the agent to hand off to."},
				"message": map[string]any{"type": "string", "description": "Optional note for the receiving agent."},
			},
			"required": []string{"target"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"action":  "hand_off",
				"target":  args["target"],
				"message": args["message"],
			}, nil
		},
	))

	_ = reg.Register(function.New(
		"complete",
		"Mark the conversation as complete.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string", "description": "Optional final message for the user."},
			},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"action":  "complete",
				"message": args["message"],
			}, nil
		},
	))

	return reg
}

// Session is the only orchestrator-adjacent type with cross-call mutable
// state: transcript, active agent and the remaining handoff budget. Callers
// must not hold overlapping Send calls against the same session.
type Session struct {
	orch       *Handoff
	id         string
	transcript []core.ChatMessage
	active     string
	remaining  *int
	metrics    *metrics.AgentMetrics
}

// Reply is the outcome of one Send call.
type Reply struct {
	Agent     string
	Content   string
	Completed bool
}

// StartSession opens a conversation with the named entry agent.
func (h *Handoff) StartSession(entryAgent string) (*Session, error) {
	if len(h.agents) == 0 {
		return nil, ErrNoAgentsRegistered
	}

	ag, ok := h.agentByName(entryAgent)
	if !ok {
		return nil, &UnknownAgentError{Name: entryAgent}
	}

	var remaining *int
	if h.opts.MaxHandoffs != nil {
		budget := *h.opts.MaxHandoffs
		remaining = &budget
	}

	id := uuid.NewString()

	h.opts.Logger.Info("handoff.session.start", "session_id", id, "entry", ag.Name)

	return &Session{
		orch:      h,
		id:        id,
		active:    ag.Name,
		remaining: remaining,
		metrics:   metrics.NewAgentMetrics(id, "handoff"),
	}, nil
}

// ActiveAgent names the agent currently holding the conversation.
func (s *Session) ActiveAgent() string { return s.active }

// Transcript returns the accumulated message history.
func (s *Session) Transcript() []core.ChatMessage { return s.transcript }

// RemainingHandoffs reports the handoff budget left, or -1 when unlimited.
func (s *Session) RemainingHandoffs() int {
	if s.remaining == nil {
		return -1
	}

	return *s.remaining
}

// State exposes the shared store configured on the orchestrator (may be nil).
func (s *Session) State() state.Store { return s.orch.opts.State }

// Send delivers one user message and drives agent turns until the active
// agent replies or completes. The loop is bounded by MaxRounds; each turn is
// bounded by LLMTimeout.
func (s *Session) Send(ctx context.Context, userMsg string) (*Reply, error) {
	h := s.orch

	s.transcript = append(s.transcript, core.User(userMsg))

	for round := 1; round <= h.opts.MaxRounds; round++ {
		emit(h.opts.Logger, h.opts.OnEvent, HandoffEvent{Kind: HandoffTurnStarted, Agent: s.active, Round: round})

		ag, ok := h.agentByName(s.active)
		if !ok {
			return nil, &UnknownAgentError{Name: s.active}
		}

		turn, err := s.executeTurn(ctx, ag)
		if err != nil {
			s.metrics.RecordError("provider")
			s.finishMetrics(round, false, 0)

			return nil, err
		}

		s.metrics.RecordTokenUsage(turn.Usage)

		action, source := s.decide(turn)

		switch act := action.(type) {
		case agent.Complete:
			content := act.Message
			if content == "" {
				content = strings.TrimSpace(turn.RawContent)
			}

			s.transcript = append(s.transcript, core.Assistant(content).WithName(s.active))

			emit(h.opts.Logger, h.opts.OnEvent, HandoffEvent{Kind: HandoffCompleted, Agent: s.active, Round: round, Source: source, Content: content})

			s.finishMetrics(round, true, len(content))

			h.opts.Logger.Info("handoff.session.complete", "session_id", s.id, "agent", s.active)

			return &Reply{Agent: s.active, Content: content, Completed: true}, nil

		case agent.HandOff:
			target, err := h.resolveTarget(act.Target, s.active)
			if err != nil {
				s.finishMetrics(round, false, 0)
				return nil, err
			}

			if s.remaining != nil {
				if *s.remaining == 0 {
					s.finishMetrics(round, false, 0)
					return nil, fmt.Errorf("%w: handoff to %s rejected", ErrMaxHandoffsReached, target)
				}
				*s.remaining--
			}

			if act.Message != "" {
				s.transcript = append(s.transcript, core.Assistant(act.Message).WithName(s.active))
			}

			emit(h.opts.Logger, h.opts.OnEvent, HandoffEvent{Kind: HandoffOccurred, From: s.active, To: target, Round: round, Source: source})

			h.opts.Logger.Info("handoff.switch", "session_id", s.id, "from", s.active, "to", target, "source", string(source))

			s.active = target

		case agent.Respond:
			content := act.Message
			if content == "" {
				content = strings.TrimSpace(turn.RawContent)
			}

			s.transcript = append(s.transcript, core.Assistant(content).WithName(s.active))

			emit(h.opts.Logger, h.opts.OnEvent, HandoffEvent{Kind: HandoffMessage, Agent: s.active, Round: round, Source: source, Content: content})

			s.finishMetrics(round, true, len(content))

			return &Reply{Agent: s.active, Content: content}, nil
		}
	}

	s.finishMetrics(h.opts.MaxRounds, false, 0)

	return nil, ErrMaxRoundsReached
}

// executeTurn runs the active agent with the internal tools under the
// per-turn timeout.
func (s *Session) executeTurn(ctx context.Context, ag agent.Agent) (*agent.Turn, error) {
	h := s.orch

	turnCtx := ctx
	cancel := context.CancelFunc(func() {})
	if h.opts.LLMTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, h.opts.LLMTimeout)
	}
	defer cancel()

	turn, err := ag.ExecuteWithTools(turnCtx, h.provider, h.model, s.transcript, h.internal, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: agent %s", ErrProviderTimeout, ag.Name)
		}

		return nil, err
	}

	return turn, nil
}

// decide applies decision-source attribution, deterministic rules and the
// ForceHandoffTool policy to a raw turn.
func (s *Session) decide(turn *agent.Turn) (agent.Action, DecisionSource) {
	h := s.orch

	source := SourceParser
	if turn.FromTool {
		source = SourceTool
	}

	action := turn.Action

	if respond, ok := action.(agent.Respond); ok {
		text := respond.Message
		if text == "" {
			text = turn.RawContent
		}

		for _, rule := range h.opts.Rules {
			if rule.Matcher != nil && rule.Matcher.Matches(text) {
				h.opts.Logger.Debug("handoff.rule.match", "session_id", s.id, "rule", rule.ID, "target", rule.Target)

				return agent.HandOff{Target: rule.Target, Message: rule.Message}, SourceRule
			}
		}

		return respond, source
	}

	if _, ok := action.(agent.HandOff); ok && h.opts.ForceHandoffTool && source == SourceParser {
		// Text-sourced handoffs are not trusted in this mode.
		return agent.Respond{Message: strings.TrimSpace(turn.RawContent)}, source
	}

	return action, source
}

// resolveTarget maps free-form target text onto a roster name: alias table,
// then exact case-insensitive match, then prefix match, then fuzzy match
// within the edit-distance threshold. Self-handoff is rejected.
func (h *Handoff) resolveTarget(target, active string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(target), "@")))
	if normalized == "" {
		return "", &UnknownAgentError{Name: target}
	}

	resolved := ""

	for alias, name := range h.opts.Aliases {
		if strings.ToLower(alias) == normalized {
			if ag, ok := h.agentByName(name); ok {
				resolved = ag.Name
			}
			break
		}
	}

	if resolved == "" {
		for _, ag := range h.agents {
			if strings.ToLower(ag.Name) == normalized {
				resolved = ag.Name
				break
			}
		}
	}

	if resolved == "" {
		for _, ag := range h.agents {
			if strings.HasPrefix(strings.ToLower(ag.Name), normalized) {
				resolved = ag.Name
				break
			}
		}
	}

	if resolved == "" {
		best := fuzzyThreshold + 1
		for _, ag := range h.agents {
			if d := util.Levenshtein(strings.ToLower(ag.Name), normalized); d < best {
				best = d
				resolved = ag.Name
			}
		}
	}

	if resolved == "" {
		return "", &UnknownAgentError{Name: target}
	}

	if strings.EqualFold(resolved, active) {
		return "", &InvalidManagerDecisionError{Reason: fmt.Sprintf("agent %s attempted to hand off to itself", active)}
	}

	return resolved, nil
}

func (h *Handoff) agentByName(name string) (agent.Agent, bool) {
	for _, ag := range h.agents {
		if strings.EqualFold(ag.Name, name) {
			return ag, true
		}
	}

	return agent.Agent{}, false
}

func (s *Session) finishMetrics(rounds int, succeeded bool, outputLen int) {
	s.metrics.Finalize(rounds, succeeded, outputLen)
	record(s.orch.opts.Collector, s.metrics)

	// A session can serve further Send calls; start a fresh record.
	s.metrics = metrics.NewAgentMetrics(s.id, "handoff")
}
