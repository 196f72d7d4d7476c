// Package anthropic adapts the Anthropic Messages API to the
// provider.Provider interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/provider"
)

// Options configures the Anthropic provider adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind provider.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Anthropic provider using the official client. Credentials
// default to the ANTHROPIC_API_KEY environment variable.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Name identifies the backend.
func (p *Provider) Name() string { return "anthropic" }

// Capabilities reports optional features of this adapter. Streaming is not
// implemented yet.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Tools: true}
}

// Complete performs a non-streaming message completion.
func (p *Provider) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	model := p.opts.Model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}

	temperature := p.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := p.opts.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	if systemBlocks := extractSystemBlocks(req.Messages); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	message := core.ChatMessage{Role: core.RoleAssistant}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			message.Content += textBlock.Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			message.ToolCalls = append(message.ToolCalls, core.ToolCall{
				ID:       toolBlock.ID,
				Type:     "function",
				Function: core.ToolCallFunction{Name: toolBlock.Name, Arguments: args},
			})
		}
	}

	return &core.CompletionResponse{
		Message: message,
		Usage: &core.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// buildMessages converts transcript messages to the Anthropic message format.
// System messages are handled separately; tool results are attached to the
// assistant turn that requested them.
func buildMessages(messages []core.ChatMessage) []anthropic.MessageParam {
	toolResults := make(map[string]string)
	for _, m := range messages {
		if m.Role == core.RoleTool && m.ToolCallID != "" {
			toolResults[m.ToolCallID] = m.Content
		}
	}

	var out []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem, core.RoleTool:
			continue
		case core.RoleAssistant:
			content := buildAssistantContent(m, toolResults)
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		default:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}

	return out
}

func buildAssistantContent(m core.ChatMessage, toolResults map[string]string) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	if m.Content != "" {
		content = append(content, anthropic.NewTextBlock(m.Content))
	}

	var callIDs []string
	for _, tc := range m.ToolCalls {
		var input interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = tc.Function.Arguments // fallback to string
			}
		}

		content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		callIDs = append(callIDs, tc.ID)
	}

	// Tool results follow immediately after the calls that produced them
	for _, id := range callIDs {
		if resp, ok := toolResults[id]; ok {
			content = append(content, anthropic.NewToolResultBlock(id, resp, false))
			delete(toolResults, id)
		}
	}

	return content
}

func extractSystemBlocks(messages []core.ChatMessage) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}

	return blocks
}

// buildTools converts wire-shape tool definitions to the Anthropic format.
func buildTools(tools []map[string]any) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam

	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}

		name, _ := fn["name"].(string)

		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params, ok := fn["parameters"].(map[string]any); ok {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := params["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []interface{}:
					var reqStrings []string
					for _, r := range req {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		out = append(out, anthropic.ToolUnionParamOfTool(inputSchema, name))
	}

	return out
}
