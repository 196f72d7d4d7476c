package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hupe1980/agentweave/agent"
	"github.com/hupe1980/agentweave/function"
	"github.com/hupe1980/agentweave/orchestrator"
	"github.com/hupe1980/agentweave/provider"
)

// defaultModel is used when no agent definition pins a model.
const defaultModel = "gpt-4o"

// BuilderOptions configures document-to-orchestrator building.
type BuilderOptions struct {
	// BaseDir anchors prompt file resolution (default: current directory).
	BaseDir string
}

// Builder materializes agents and orchestrators from a parsed document.
type Builder struct {
	doc  *Document
	opts BuilderOptions
}

// NewBuilder creates a builder over a parsed document.
func NewBuilder(doc *Document, optFns ...func(o *BuilderOptions)) *Builder {
	opts := BuilderOptions{BaseDir: "."}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Builder{doc: doc, opts: opts}
}

// NewBuilderFromYAML parses the document and creates a builder in one step.
func NewBuilderFromYAML(data []byte, optFns ...func(o *BuilderOptions)) (*Builder, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	return NewBuilder(doc, optFns...), nil
}

// Document exposes the underlying document.
func (b *Builder) Document() *Document { return b.doc }

// BuildAgents materializes every agent definition. System prompts resolve
// through the prompt table (inline text or file), then as a file under the
// base directory, then as inline text. Tool registries are merged per agent
// from the provided map, keyed by tool id.
func (b *Builder) BuildAgents(registries map[string]*function.Registry) (map[string]agent.Agent, error) {
	agents := make(map[string]agent.Agent, len(b.doc.Agents))

	for _, def := range b.doc.Agents {
		instructions, err := b.resolveInstructions(def.SystemPrompt)
		if err != nil {
			return nil, err
		}

		optFns := []func(o *agent.Options){
			agent.WithDescription(def.Description),
			agent.WithModel(def.Model),
		}

		if def.Defaults != nil {
			optFns = append(optFns, callSettingsOptions(def.Defaults)...)
		}

		if reg := b.mergeRegistries(def.Tools, registries); reg != nil {
			optFns = append(optFns, agent.WithFunctions(reg))
		}

		agents[def.ID] = agent.New(def.ID, instructions, optFns...)
	}

	return agents, nil
}

// resolveInstructions turns a system_prompt reference into instruction text.
func (b *Builder) resolveInstructions(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	for _, p := range b.doc.Prompts {
		if p.ID != ref {
			continue
		}

		if p.Text != "" {
			return p.Text, nil
		}
		if p.File != "" {
			return b.readPromptFile(p.File)
		}

		return "", nil
	}

	candidate := filepath.Join(b.opts.BaseDir, ref)
	if _, err := os.Stat(candidate); err == nil {
		return b.readPromptFile(ref)
	}

	return ref, nil
}

func (b *Builder) readPromptFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(b.opts.BaseDir, name))
	if err != nil {
		return "", fmt.Errorf("flow: read prompt file %s: %w", name, err)
	}

	return string(data), nil
}

// mergeRegistries combines the registries of the named tools. Unknown tool
// ids are skipped; nil is returned when nothing matched.
func (b *Builder) mergeRegistries(toolIDs []string, registries map[string]*function.Registry) *function.Registry {
	var combined *function.Registry

	for _, id := range toolIDs {
		reg, ok := registries[id]
		if !ok || reg == nil {
			continue
		}

		if combined == nil {
			combined = function.NewRegistry()
		}

		for _, def := range reg.Definitions() {
			if fn, ok := reg.Get(def.Name); ok {
				_ = combined.Register(fn)
			}
		}
	}

	return combined
}

// BuildSequential plans the flow and assembles a sequential orchestrator
// from the resulting agent pipeline. Per-step parameters override the agent
// definition defaults.
func (b *Builder) BuildSequential(
	p provider.Provider,
	flowID string,
	fctx *Context,
	registries map[string]*function.Registry,
	optFns ...func(o *orchestrator.SequentialOptions),
) (*orchestrator.Sequential, error) {
	agents, err := b.BuildAgents(registries)
	if err != nil {
		return nil, err
	}

	plan, err := Plan(b.doc, flowID, fctx)
	if err != nil {
		return nil, err
	}

	if len(plan) == 0 {
		return nil, &MissingOutputError{Flow: flowID}
	}

	pipeline := make([]agent.Agent, 0, len(plan))
	for _, step := range plan {
		ag, ok := agents[step.AgentID]
		if !ok {
			return nil, &AgentNotFoundError{ID: step.AgentID}
		}

		pipeline = append(pipeline, applyCallSettings(ag, step.Parameters))
	}

	return orchestrator.NewSequential(p, b.modelFor(plan[0].AgentID), pipeline, optFns...), nil
}

// BuildConcurrent assembles a concurrent orchestrator over every agent node
// of the flow.
func (b *Builder) BuildConcurrent(
	p provider.Provider,
	flowID string,
	registries map[string]*function.Registry,
	optFns ...func(o *orchestrator.ConcurrentOptions),
) (*orchestrator.Concurrent, error) {
	roster, model, err := b.flowRoster(flowID, registries)
	if err != nil {
		return nil, err
	}

	return orchestrator.NewConcurrent(p, model, roster, optFns...), nil
}

// BuildGroupChat assembles a round-robin group chat over every agent node of
// the flow, applying the flow's group_chat settings when present.
func (b *Builder) BuildGroupChat(
	p provider.Provider,
	flowID string,
	registries map[string]*function.Registry,
	optFns ...func(o *orchestrator.GroupChatOptions),
) (*orchestrator.GroupChat, error) {
	f, err := b.doc.FlowByID(flowID)
	if err != nil {
		return nil, err
	}

	roster, model, err := b.flowRoster(flowID, registries)
	if err != nil {
		return nil, err
	}

	manager := orchestrator.NewRoundRobinManager(func(o *orchestrator.RoundRobinOptions) {
		if f.GroupChat != nil {
			if f.GroupChat.MaximumRounds > 0 {
				o.MaxRounds = f.GroupChat.MaximumRounds
			}
			o.UserPromptFrequency = f.GroupChat.UserPromptFrequency
		}
	})

	return orchestrator.NewGroupChat(p, model, roster, manager, optFns...), nil
}

// BuildHandoff assembles a handoff orchestrator over every agent node of the
// flow, mapping the flow's handoff settings (budget, rounds, timeout,
// aliases, rules) onto orchestrator options.
func (b *Builder) BuildHandoff(
	p provider.Provider,
	flowID string,
	registries map[string]*function.Registry,
	optFns ...func(o *orchestrator.HandoffOptions),
) (*orchestrator.Handoff, error) {
	f, err := b.doc.FlowByID(flowID)
	if err != nil {
		return nil, err
	}

	roster, model, err := b.flowRoster(flowID, registries)
	if err != nil {
		return nil, err
	}

	var rules []orchestrator.Rule
	aliases := map[string]string{}

	if f.Handoff != nil {
		for _, a := range f.Handoff.Aliases {
			aliases[a.Alias] = a.Target
		}

		for _, def := range f.Handoff.Rules {
			rule, err := ruleFromDefinition(def)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
	}

	settings := func(o *orchestrator.HandoffOptions) {
		if f.Handoff != nil {
			if f.Handoff.MaxHandoffs != nil {
				o.MaxHandoffs = f.Handoff.MaxHandoffs
			}
			if f.Handoff.MaxRounds != nil {
				o.MaxRounds = *f.Handoff.MaxRounds
			}
			if f.Handoff.LLMTimeoutMS != nil {
				o.LLMTimeout = time.Duration(*f.Handoff.LLMTimeoutMS) * time.Millisecond
			}
		}

		if len(aliases) > 0 {
			o.Aliases = aliases
		}
		o.Rules = rules
	}

	return orchestrator.NewHandoff(p, model, roster, append([]func(o *orchestrator.HandoffOptions){settings}, optFns...)...), nil
}

// BuildMagentic assembles a manager-delegate orchestrator with every agent
// node of the flow registered as a delegate.
func (b *Builder) BuildMagentic(
	p provider.Provider,
	flowID string,
	registries map[string]*function.Registry,
	optFns ...func(o *orchestrator.MagenticOptions),
) (*orchestrator.Magentic, error) {
	roster, model, err := b.flowRoster(flowID, registries)
	if err != nil {
		return nil, err
	}

	m := orchestrator.NewMagentic(p, model, optFns...)
	for _, ag := range roster {
		if err := m.RegisterAgent(ag); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// flowRoster materializes the agents referenced by the flow's agent nodes,
// in node order, along with the model of the first defined agent.
func (b *Builder) flowRoster(flowID string, registries map[string]*function.Registry) ([]agent.Agent, string, error) {
	f, err := b.doc.FlowByID(flowID)
	if err != nil {
		return nil, "", err
	}

	agents, err := b.BuildAgents(registries)
	if err != nil {
		return nil, "", err
	}

	ids := f.agentNodeIDs()

	roster := make([]agent.Agent, 0, len(ids))
	model := ""
	for _, id := range ids {
		ag, ok := agents[id]
		if !ok {
			return nil, "", &AgentNotFoundError{ID: id}
		}
		roster = append(roster, ag)

		if model == "" {
			model = b.modelFor(id)
		}
	}

	if model == "" {
		model = defaultModel
	}

	return roster, model, nil
}

func (b *Builder) modelFor(agentID string) string {
	if def, ok := b.doc.AgentByID(agentID); ok && def.Model != "" {
		return def.Model
	}

	return defaultModel
}

// callSettingsOptions maps call settings onto agent options.
func callSettingsOptions(s *CallSettings) []func(o *agent.Options) {
	var optFns []func(o *agent.Options)

	if s.Model != "" {
		optFns = append(optFns, agent.WithModel(s.Model))
	}
	if s.Temperature != nil {
		optFns = append(optFns, agent.WithTemperature(*s.Temperature))
	}
	if s.TopP != nil {
		optFns = append(optFns, agent.WithTopP(*s.TopP))
	}
	if s.MaxTokens != nil {
		optFns = append(optFns, agent.WithMaxTokens(*s.MaxTokens))
	}

	return optFns
}

// applyCallSettings overrides an agent's completion parameters in place.
func applyCallSettings(ag agent.Agent, s *CallSettings) agent.Agent {
	if s == nil {
		return ag
	}

	if s.Model != "" {
		ag.Model = s.Model
	}
	if s.Temperature != nil {
		ag.Temperature = s.Temperature
	}
	if s.TopP != nil {
		ag.TopP = s.TopP
	}
	if s.MaxTokens != nil {
		ag.MaxTokens = s.MaxTokens
	}

	return ag
}

// ruleFromDefinition maps a YAML rule onto an orchestrator rule.
func ruleFromDefinition(def RuleDef) (orchestrator.Rule, error) {
	var matcher orchestrator.Matcher

	switch def.Matcher {
	case "keywords_any":
		matcher = orchestrator.KeywordsAny(def.Keywords)
	case "keywords_all":
		matcher = orchestrator.KeywordsAll(def.Keywords)
	case "regex":
		pattern, err := regexp.Compile(def.Pattern)
		if err != nil {
			return orchestrator.Rule{}, &ValidationError{Reason: fmt.Sprintf("rule %q: invalid regex %q: %v", def.ID, def.Pattern, err)}
		}
		matcher = orchestrator.RegexMatcher{Pattern: pattern}
	default:
		return orchestrator.Rule{}, &ValidationError{Reason: fmt.Sprintf("rule %q: unknown matcher %q", def.ID, def.Matcher)}
	}

	return orchestrator.Rule{
		ID:      def.ID,
		Matcher: matcher,
		Target:  def.Target,
		Message: def.Message,
	}, nil
}
