// Package metrics defines the per-run execution summary orchestrators hand
// to an injected Collector. The core only ever records; aggregation and
// export belong to the caller.
package metrics

import (
	"sync"
	"time"

	"github.com/hupe1980/agentweave/core"
)

// ExecutionMetrics summarizes the run itself.
type ExecutionMetrics struct {
	TotalDuration time.Duration `json:"total_duration"`
	Rounds        int           `json:"rounds"`
	Succeeded     bool          `json:"succeeded"`
	OutputLength  int           `json:"output_length"`
}

// TokenMetrics accumulates provider-reported token usage.
type TokenMetrics struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// FunctionCallMetrics counts tool invocations during the run.
type FunctionCallMetrics struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Called     []string `json:"called,omitempty"`
}

// ErrorMetrics records failures observed during the run.
type ErrorMetrics struct {
	Count int      `json:"count"`
	Types []string `json:"types,omitempty"`
}

// AgentMetrics is one structured record per completed run (or per agent,
// for orchestrators that report agent-level granularity).
type AgentMetrics struct {
	RunID         string              `json:"run_id"`
	AgentName     string              `json:"agent_name"`
	Execution     ExecutionMetrics    `json:"execution"`
	Tokens        TokenMetrics        `json:"tokens"`
	FunctionCalls FunctionCallMetrics `json:"function_calls"`
	Errors        ErrorMetrics        `json:"errors"`
	Timestamp     time.Time           `json:"timestamp"`

	started time.Time
}

// NewAgentMetrics starts a metrics record for the given run and agent.
func NewAgentMetrics(runID, agentName string) *AgentMetrics {
	return &AgentMetrics{
		RunID:     runID,
		AgentName: agentName,
		started:   time.Now(),
	}
}

// RecordTokenUsage accumulates provider-reported usage.
func (m *AgentMetrics) RecordTokenUsage(usage *core.TokenUsage) {
	if usage == nil {
		return
	}

	m.Tokens.InputTokens += usage.PromptTokens
	m.Tokens.OutputTokens += usage.CompletionTokens
	m.Tokens.TotalTokens += usage.TotalTokens
}

// RecordFunctionCall counts one tool invocation.
func (m *AgentMetrics) RecordFunctionCall(name string, success bool) {
	m.FunctionCalls.Total++
	if success {
		m.FunctionCalls.Successful++
	} else {
		m.FunctionCalls.Failed++
	}

	m.FunctionCalls.Called = append(m.FunctionCalls.Called, name)
}

// RecordError notes a failure with its error type string.
func (m *AgentMetrics) RecordError(errType string) {
	m.Errors.Count++
	m.Errors.Types = append(m.Errors.Types, errType)
}

// Finalize stamps duration, round count and outcome. Call exactly once,
// right before handing the record to a Collector.
func (m *AgentMetrics) Finalize(rounds int, succeeded bool, outputLength int) {
	m.Execution.TotalDuration = time.Since(m.started)
	m.Execution.Rounds = rounds
	m.Execution.Succeeded = succeeded
	m.Execution.OutputLength = outputLength
	m.Timestamp = time.Now()
}

// Collector receives one record per completed run. Implementations must be
// safe for concurrent use.
type Collector interface {
	Record(m AgentMetrics)
}

// InMemoryCollector retains records in memory. Intended for tests and
// local development.
type InMemoryCollector struct {
	mu      sync.Mutex
	records []AgentMetrics
}

// NewInMemoryCollector creates an empty collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{}
}

// Record appends one record.
func (c *InMemoryCollector) Record(m AgentMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, m)
}

// Snapshot returns a copy of all records collected so far.
func (c *InMemoryCollector) Snapshot() []AgentMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AgentMetrics, len(c.records))
	copy(out, c.records)

	return out
}

// Timer measures one operation.
type Timer struct {
	started time.Time
}

// StartTimer begins timing.
func StartTimer() Timer {
	return Timer{started: time.Now()}
}

// Elapsed reports the time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.started)
}
