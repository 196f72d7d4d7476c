// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the provider.Provider interface.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentweave/core"
	"github.com/hupe1980/agentweave/provider"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool calls when the finish reason is
// emitted. Internal helper (unexported).
type aggCall struct{ id, name, args string }

// Options configure the OpenAI provider adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Provider wraps the OpenAI Chat Completions API behind provider.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

var _ provider.Provider = (*Provider)(nil)
var _ provider.Streamer = (*Provider)(nil)

// New creates a new OpenAI provider using the official client. Credentials
// default to the OPENAI_API_KEY environment variable.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a new OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Name identifies the backend.
func (p *Provider) Name() string { return "openai" }

// Capabilities reports optional features of this adapter.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, Tools: true}
}

// Complete performs a non-streaming chat completion.
func (p *Provider) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, &provider.InvalidResponseError{Provider: "openai", Reason: "no choices returned"}
	}

	ch0 := resp.Choices[0]

	message := core.Assistant(ch0.Message.Content)
	for _, tc := range ch0.Message.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, core.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: core.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return &core.CompletionResponse{
		Message: message,
		Usage: &core.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream performs a streaming chat completion, yielding delta events and a
// terminal Completed event carrying the assembled response.
func (p *Provider) Stream(ctx context.Context, req core.CompletionRequest) (<-chan core.StreamEvent, <-chan error) {
	out := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)

		var textBuilder strings.Builder
		toolAgg := map[int64]*aggCall{}
		finished := false

		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					textBuilder.WriteString(ch.Delta.Content)
					out <- core.MessageDeltaEvent(ch.Delta.Content)
				}

				for _, tc := range ch.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
						out <- core.ToolCallDeltaEvent(int(tc.Index), tc.Function.Arguments)
					}
				}

				if ch.FinishReason != "" {
					finished = true
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}

		if finished {
			message := core.Assistant(textBuilder.String())

			indices := make([]int64, 0, len(toolAgg))
			for i := range toolAgg {
				indices = append(indices, i)
			}
			sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })

			for _, i := range indices {
				ac := toolAgg[i]
				message.ToolCalls = append(message.ToolCalls, core.ToolCall{
					ID:       ac.id,
					Type:     "function",
					Function: core.ToolCallFunction{Name: ac.name, Arguments: ac.args},
				})
			}

			out <- core.CompletedEvent(core.CompletionResponse{Message: message})
		}
	}()

	return out, errCh
}

// buildParams assembles the OpenAI request parameters including tool
// definitions. Request-level sampling fields override adapter defaults.
func (p *Provider) buildParams(req core.CompletionRequest) openai.ChatCompletionNewParams {
	model := p.opts.Model
	if req.Model != "" {
		model = req.Model
	}

	temperature := p.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := p.opts.MaxCompletionTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	if choice := buildToolChoice(req.ToolChoice); choice != nil {
		params.ToolChoice = *choice
	}

	return params
}

// buildMessages converts transcript messages into OpenAI chat messages.
func buildMessages(messages []core.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}

			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}

			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		}
	}

	return out
}

// buildTools converts wire-shape tool definitions into SDK tool params.
func buildTools(tools []map[string]any) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))

	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}

		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)
		parameters, _ := fn["parameters"].(map[string]any)

		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(description),
				Parameters:  parameters,
			},
		})
	}

	return out
}

// buildToolChoice maps the neutral tool-choice policy onto the SDK union.
// Strings pass through ("auto", "none", "required"); a map with a nested
// function name forces that function.
func buildToolChoice(choice any) *openai.ChatCompletionToolChoiceOptionUnionParam {
	switch v := choice.(type) {
	case string:
		if v == "" {
			return nil
		}
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(v)}
	case map[string]any:
		fn, ok := v["function"].(map[string]any)
		if !ok {
			return nil
		}
		name, _ := fn["name"].(string)
		if name == "" {
			return nil
		}
		return &openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Type:     "function",
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: name},
			},
		}
	default:
		return nil
	}
}
