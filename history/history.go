// Package history manages conversation transcripts: an append-only message
// buffer plus pluggable compressors that keep long-running sessions within a
// bounded window by summarizing older messages.
package history

import (
	"strings"

	"github.com/hupe1980/agentweave/core"
)

// History is a mutable message buffer. Not safe for concurrent use; guard it
// at the session level.
type History struct {
	messages []core.ChatMessage
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// FromMessages creates a history seeded with the given messages.
func FromMessages(messages []core.ChatMessage) *History {
	return &History{messages: messages}
}

// Push appends a message.
func (h *History) Push(msg core.ChatMessage) {
	h.messages = append(h.messages, msg)
}

// PushUser appends a user message.
func (h *History) PushUser(content string) {
	h.Push(core.User(content))
}

// PushAssistant appends an assistant message.
func (h *History) PushAssistant(content string) {
	h.Push(core.Assistant(content))
}

// PushSystem appends a system message.
func (h *History) PushSystem(content string) {
	h.Push(core.System(content))
}

// PushTool appends a tool-result message.
func (h *History) PushTool(toolCallID, content string) {
	h.Push(core.Tool(toolCallID, content))
}

// Messages returns the buffered messages. The slice is shared; callers must
// not mutate it.
func (h *History) Messages() []core.ChatMessage {
	return h.messages
}

// Len reports the number of buffered messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Last returns the most recent message, if any.
func (h *History) Last() (core.ChatMessage, bool) {
	if len(h.messages) == 0 {
		return core.ChatMessage{}, false
	}

	return h.messages[len(h.messages)-1], true
}

// Clear drops all messages.
func (h *History) Clear() {
	h.messages = h.messages[:0]
}

// TotalContentLength sums the content length of every message.
func (h *History) TotalContentLength() int {
	total := 0
	for _, msg := range h.messages {
		if text, ok := msg.Text(); ok {
			total += len(text)
		}
	}

	return total
}

// Append moves the other history's messages onto this one, leaving the
// other empty.
func (h *History) Append(other *History) {
	h.messages = append(h.messages, other.messages...)
	other.messages = nil
}

// Compress applies the compressor and reports whether the buffer changed.
func (h *History) Compress(c Compressor) bool {
	return c.Compress(h)
}

// Compressor rewrites a history in place to keep it bounded.
type Compressor interface {
	Compress(h *History) bool
}

// NoopCompressor never changes the history.
type NoopCompressor struct{}

// Compress implements Compressor.
func (NoopCompressor) Compress(*History) bool { return false }

// Summarizer condenses a span of messages into one line of text.
type Summarizer interface {
	Summarize(messages []core.ChatMessage) (string, bool)
}

// ConciseSummarizer concatenates message texts and truncates the result,
// rune-safe, with a trailing ellipsis.
type ConciseSummarizer struct {
	MaxChars int
}

// NewConciseSummarizer creates a summarizer bounded to maxChars characters
// (minimum 1, default 512 when zero or negative).
func NewConciseSummarizer(maxChars int) *ConciseSummarizer {
	if maxChars < 1 {
		maxChars = 512
	}

	return &ConciseSummarizer{MaxChars: maxChars}
}

// Summarize implements Summarizer.
func (s *ConciseSummarizer) Summarize(messages []core.ChatMessage) (string, bool) {
	var b strings.Builder

	for _, msg := range messages {
		text, ok := msg.Text()
		if !ok {
			continue
		}

		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(text))
	}

	combined := b.String()
	if combined == "" {
		return "", false
	}

	runes := []rune(combined)
	if len(runes) > s.MaxChars {
		combined = string(runes[:s.MaxChars]) + "..."
	}

	return combined, true
}

// FixedWindowCompressorOptions configures the fixed-window compressor.
type FixedWindowCompressorOptions struct {
	// RetainMessages is how many recent messages survive verbatim.
	RetainMessages int

	// SummaryPrefix leads the synthesized summary message.
	SummaryPrefix string
}

// FixedWindowCompressor keeps the history at or below a message cap by
// replacing the oldest span with one system summary message.
type FixedWindowCompressor struct {
	maxMessages int
	summarizer  Summarizer
	opts        FixedWindowCompressorOptions
}

// NewFixedWindowCompressor creates a compressor capped at maxMessages
// (minimum 2). Defaults: retain the 6 most recent messages, prefix
// "Summary so far: ".
func NewFixedWindowCompressor(maxMessages int, summarizer Summarizer, optFns ...func(o *FixedWindowCompressorOptions)) *FixedWindowCompressor {
	opts := FixedWindowCompressorOptions{
		RetainMessages: 6,
		SummaryPrefix:  "Summary so far: ",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if maxMessages < 2 {
		maxMessages = 2
	}
	if opts.RetainMessages < 1 {
		opts.RetainMessages = 1
	}

	return &FixedWindowCompressor{maxMessages: maxMessages, summarizer: summarizer, opts: opts}
}

// Compress implements Compressor.
func (c *FixedWindowCompressor) Compress(h *History) bool {
	if h.Len() <= c.maxMessages {
		return false
	}

	retain := c.opts.RetainMessages
	if retain > c.maxMessages-1 {
		retain = c.maxMessages - 1
	}
	if retain > h.Len() {
		retain = h.Len()
	}

	boundary := h.Len() - retain
	if boundary <= 0 {
		return false
	}

	text, ok := c.summarizer.Summarize(h.messages[:boundary])
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return false
	}

	summary := core.System(c.opts.SummaryPrefix + text).WithName("history-summary")

	kept := make([]core.ChatMessage, 0, retain+1)
	kept = append(kept, summary)
	kept = append(kept, h.messages[boundary:]...)
	h.messages = kept

	// The summary itself may push the buffer one over the cap.
	for len(h.messages) > c.maxMessages {
		h.messages = append(h.messages[:1], h.messages[2:]...)
	}

	return true
}
