package core

// TokenUsage reports token consumption for a single completion.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add accumulates usage from another completion.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest is the provider-neutral request shape. Tools carries
// wire-shape tool definitions ({"type":"function","function":{...}});
// ToolChoice and ResponseFormat pass through to the provider untouched.
type CompletionRequest struct {
	Model          string           `json:"model"`
	Messages       []ChatMessage    `json:"messages"`
	Temperature    *float64         `json:"temperature,omitempty"`
	TopP           *float64         `json:"top_p,omitempty"`
	MaxTokens      *int64           `json:"max_tokens,omitempty"`
	Tools          []map[string]any `json:"tools,omitempty"`
	ToolChoice     any              `json:"tool_choice,omitempty"`
	ResponseFormat any              `json:"response_format,omitempty"`
}

// NewCompletionRequest creates a request for the given model and messages.
func NewCompletionRequest(model string, messages []ChatMessage) CompletionRequest {
	return CompletionRequest{Model: model, Messages: messages}
}

// WithTemperature sets the sampling temperature.
func (r CompletionRequest) WithTemperature(t float64) CompletionRequest {
	r.Temperature = &t
	return r
}

// WithTopP sets the nucleus-sampling parameter.
func (r CompletionRequest) WithTopP(p float64) CompletionRequest {
	r.TopP = &p
	return r
}

// WithMaxTokens caps the completion length.
func (r CompletionRequest) WithMaxTokens(n int64) CompletionRequest {
	r.MaxTokens = &n
	return r
}

// WithTools advertises tool definitions to the model.
func (r CompletionRequest) WithTools(tools []map[string]any) CompletionRequest {
	r.Tools = tools
	return r
}

// WithToolChoice sets the tool-choice policy ("auto", "none", or a
// provider-specific forced-function object).
func (r CompletionRequest) WithToolChoice(choice any) CompletionRequest {
	r.ToolChoice = choice
	return r
}

// CompletionResponse is the provider-neutral result of one completion.
type CompletionResponse struct {
	Message   ChatMessage `json:"message"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	Reasoning string      `json:"reasoning,omitempty"`
}

// StreamEventKind discriminates streaming delta events.
type StreamEventKind string

const (
	StreamMessageDelta   StreamEventKind = "message_delta"
	StreamReasoningDelta StreamEventKind = "reasoning_delta"
	StreamToolCallDelta  StreamEventKind = "tool_call_delta"
	StreamCompleted      StreamEventKind = "completed"
)

// StreamEvent is one incremental event from a streaming completion. Exactly
// the fields implied by Kind are set.
type StreamEvent struct {
	Kind      StreamEventKind     `json:"kind"`
	Delta     string              `json:"delta,omitempty"`
	ToolIndex int                 `json:"tool_index,omitempty"`
	Response  *CompletionResponse `json:"response,omitempty"`
}

// MessageDeltaEvent creates a text-delta event.
func MessageDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Kind: StreamMessageDelta, Delta: delta}
}

// ReasoningDeltaEvent creates a reasoning-delta event.
func ReasoningDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Kind: StreamReasoningDelta, Delta: delta}
}

// ToolCallDeltaEvent creates a tool-call-argument delta event for the tool
// call at the given index.
func ToolCallDeltaEvent(index int, arguments string) StreamEvent {
	return StreamEvent{Kind: StreamToolCallDelta, ToolIndex: index, Delta: arguments}
}

// CompletedEvent creates the terminal event carrying the full response.
func CompletedEvent(resp CompletionResponse) StreamEvent {
	return StreamEvent{Kind: StreamCompleted, Response: &resp}
}
