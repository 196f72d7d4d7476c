package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, ChatMessage{Role: RoleSystem, Content: "s"}, System("s"))
	assert.Equal(t, ChatMessage{Role: RoleUser, Content: "u"}, User("u"))
	assert.Equal(t, ChatMessage{Role: RoleAssistant, Content: "a"}, Assistant("a"))
	assert.Equal(t, ChatMessage{Role: RoleTool, Content: "r", ToolCallID: "call-1"}, Tool("call-1", "r"))
}

func TestMessageWithersCopy(t *testing.T) {
	base := Assistant("hi")

	named := base.WithName("planner")
	assert.Equal(t, "planner", named.Name)
	assert.Empty(t, base.Name)

	calls := []ToolCall{{ID: "c1", Type: "function", Function: ToolCallFunction{Name: "search", Arguments: "{}"}}}
	withCalls := base.WithToolCalls(calls)
	assert.Equal(t, calls, withCalls.ToolCalls)
	assert.Nil(t, base.ToolCalls)
}

func TestMessageText(t *testing.T) {
	text, ok := User("hello").Text()
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	_, ok = ChatMessage{Role: RoleAssistant}.Text()
	assert.False(t, ok)
}

func TestTokenUsageAdd(t *testing.T) {
	u := TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})

	assert.Equal(t, TokenUsage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, u)
}

func TestCompletionRequestBuilders(t *testing.T) {
	req := NewCompletionRequest("m", []ChatMessage{User("hi")}).
		WithTemperature(0.2).
		WithTopP(0.9).
		WithMaxTokens(64).
		WithToolChoice("auto")

	assert.Equal(t, "m", req.Model)
	assert.Equal(t, 0.2, *req.Temperature)
	assert.Equal(t, 0.9, *req.TopP)
	assert.Equal(t, int64(64), *req.MaxTokens)
	assert.Equal(t, "auto", req.ToolChoice)
}
