// Package agent defines the Agent value, the single-turn executor, and the
// action resolver that turns free-form model replies into canonical actions.
// Agents are immutable values: construct once, copy freely, never mutate
// during a run.
package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/function"
	"github.com/hupe1980/agentweave/provider"
)

// Options configures optional Agent fields.
type Options struct {
	// Description is shown to manager agents when they pick a delegate.
	Description string

	// Functions is the agent's bound tool registry.
	Functions *function.Registry

	// Sampling overrides. Nil fields defer to the provider adapter defaults.
	Temperature *float64
	TopP        *float64
	MaxTokens   *int64

	// ToolChoice is the provider-neutral tool-choice policy.
	ToolChoice any

	// Provider overrides the orchestrator-level provider for this agent.
	Provider provider.Provider

	// Model overrides the orchestrator-level model id for this agent.
	Model string
}

// Agent is an immutable participant in a run: a name (unique within a
// roster), instruction text and optional overrides.
type Agent struct {
	Name         string
	Description  string
	Instructions string
	Functions    *function.Registry
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int64
	ToolChoice   any
	Provider     provider.Provider
	Model        string
}

// New creates an agent with the given name and instruction text.
func New(name, instructions string, optFns ...func(o *Options)) Agent {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return Agent{
		Name:         name,
		Description:  opts.Description,
		Instructions: instructions,
		Functions:    opts.Functions,
		Temperature:  opts.Temperature,
		TopP:         opts.TopP,
		MaxTokens:    opts.MaxTokens,
		ToolChoice:   opts.ToolChoice,
		Provider:     opts.Provider,
		Model:        opts.Model,
	}
}

// WithDescription sets the roster description.
func WithDescription(description string) func(o *Options) {
	return func(o *Options) { o.Description = description }
}

// WithFunctions binds a tool registry to the agent.
func WithFunctions(reg *function.Registry) func(o *Options) {
	return func(o *Options) { o.Functions = reg }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) func(o *Options) {
	return func(o *Options) { o.Temperature = &t }
}

// WithTopP sets the nucleus-sampling parameter.
func WithTopP(p float64) func(o *Options) {
	return func(o *Options) { o.TopP = &p }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) func(o *Options) {
	return func(o *Options) { o.MaxTokens = &n }
}

// WithToolChoice sets the tool-choice policy.
func WithToolChoice(choice any) func(o *Options) {
	return func(o *Options) { o.ToolChoice = choice }
}

// WithProvider pins the agent to a specific provider.
func WithProvider(p provider.Provider) func(o *Options) {
	return func(o *Options) { o.Provider = p }
}

// WithModel pins the agent to a specific model id.
func WithModel(model string) func(o *Options) {
	return func(o *Options) { o.Model = model }
}

// Turn is the outcome of one agent invocation.
type Turn struct {
	// Action is the resolved canonical action.
	Action Action

	// ToolCalls records every tool call the model emitted this turn.
	ToolCalls []core.ToolCall

	// Usage carries token accounting when the provider reports it.
	Usage *core.TokenUsage

	// RawContent is the unparsed assistant text.
	RawContent string

	// FromTool is true when the action was resolved from a tool result
	// rather than the reply text.
	FromTool bool
}

// Execute runs one turn: the agent's instructions are prepended as a system
// message to the accumulated transcript, the completion is requested, and
// the reply text is resolved into an action.
func (a Agent) Execute(ctx context.Context, p provider.Provider, model string, history []core.ChatMessage) (*Turn, error) {
	resp, err := a.complete(ctx, p, model, history, nil, nil)
	if err != nil {
		return nil, err
	}

	return &Turn{
		Action:     ResolveAction(resp.Message.Content),
		ToolCalls:  resp.Message.ToolCalls,
		Usage:      resp.Usage,
		RawContent: resp.Message.Content,
	}, nil
}

// ExecuteWithTools runs one turn with the agent's functions plus an optional
// extra registry advertised to the model. When the model answers with tool
// calls, at most the first call whose function is known is invoked, and its
// textual result is resolved into the action; otherwise the plain reply text
// is resolved as usual.
func (a Agent) ExecuteWithTools(
	ctx context.Context,
	p provider.Provider,
	model string,
	history []core.ChatMessage,
	extra *function.Registry,
	toolChoice any,
) (*Turn, error) {
	var tools []map[string]any
	if a.Functions != nil {
		tools = append(tools, a.Functions.Tools()...)
	}
	if extra != nil {
		tools = append(tools, extra.Tools()...)
	}

	if toolChoice == nil {
		toolChoice = a.ToolChoice
	}

	resp, err := a.complete(ctx, p, model, history, tools, toolChoice)
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		ToolCalls:  resp.Message.ToolCalls,
		Usage:      resp.Usage,
		RawContent: resp.Message.Content,
	}

	if len(resp.Message.ToolCalls) > 0 {
		call := resp.Message.ToolCalls[0]

		if reg := a.registryFor(call.Function.Name, extra); reg != nil {
			result, err := reg.Invoke(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("agent %s: tool %s: %w", a.Name, call.Function.Name, err)
			}

			turn.Action = ResolveAction(result)
			turn.FromTool = true

			return turn, nil
		}
	}

	turn.Action = ResolveAction(resp.Message.Content)

	return turn, nil
}

// registryFor locates the registry holding the named function, preferring
// the extra (orchestrator-injected) registry over the agent's own.
func (a Agent) registryFor(name string, extra *function.Registry) *function.Registry {
	if extra != nil {
		if _, ok := extra.Get(name); ok {
			return extra
		}
	}

	if a.Functions != nil {
		if _, ok := a.Functions.Get(name); ok {
			return a.Functions
		}
	}

	return nil
}

func (a Agent) complete(
	ctx context.Context,
	p provider.Provider,
	model string,
	history []core.ChatMessage,
	tools []map[string]any,
	toolChoice any,
) (*core.CompletionResponse, error) {
	if a.Provider != nil {
		p = a.Provider
	}

	if a.Model != "" {
		model = a.Model
	}

	messages := make([]core.ChatMessage, 0, len(history)+1)
	if a.Instructions != "" {
		messages = append(messages, core.System(a.Instructions))
	}
	messages = append(messages, history...)

	req := core.NewCompletionRequest(model, messages)

	if a.Temperature != nil {
		req.Temperature = a.Temperature
	}
	if a.TopP != nil {
		req.TopP = a.TopP
	}
	if a.MaxTokens != nil {
		req.MaxTokens = a.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = tools
	}
	if toolChoice != nil {
		req.ToolChoice = toolChoice
	}

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name, err)
	}

	return resp, nil
}
