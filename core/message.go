// Package core defines the chat data model shared by providers, agents and
// orchestrators: messages, tool calls, completion requests and responses,
// token usage and streaming events. Everything here is a plain value; the
// transcript of a run is an append-only []ChatMessage.
package core

// Role identifies the author class of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallFunction carries the function name and raw JSON arguments of a
// tool call as emitted by the model.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ChatMessage is a single transcript entry. Name carries the acting agent's
// name on assistant messages and the function name on tool messages.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// System creates a system message.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User creates a user message.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// Assistant creates an assistant message.
func Assistant(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// Tool creates a tool-result message linked to the originating call.
func Tool(toolCallID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// WithName returns a copy of the message with the sender name set.
func (m ChatMessage) WithName(name string) ChatMessage {
	m.Name = name
	return m
}

// WithToolCalls returns a copy of the message carrying the given tool calls.
func (m ChatMessage) WithToolCalls(calls []ToolCall) ChatMessage {
	m.ToolCalls = calls
	return m
}

// Text returns the message content and whether it is non-empty.
func (m ChatMessage) Text() (string, bool) {
	return m.Content, m.Content != ""
}
