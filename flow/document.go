// Package flow loads declarative YAML flow documents, plans them into
// sequential agent pipelines, and builds orchestrators from them. A document
// declares agents, tools, prompts and one or more flow graphs; the planner
// walks a graph edge by edge and flattens it into an ordered list of agent
// steps that the orchestrators can execute.
package flow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultVersion is applied when a document omits the version field.
const defaultVersion = "0.1"

// NodeType discriminates the node kinds of a flow graph.
type NodeType string

const (
	NodeInput    NodeType = "input"
	NodeOutput   NodeType = "output"
	NodeAgent    NodeType = "agent"
	NodeDecision NodeType = "decision"
	NodeTool     NodeType = "tool"
	NodeMerge    NodeType = "merge"
	NodeLoop     NodeType = "loop"
	NodeSubflow  NodeType = "subflow"
	NodeParallel NodeType = "parallel"
)

// knownNodeTypes guards against typos in hand-written documents.
var knownNodeTypes = map[NodeType]bool{
	NodeInput:    true,
	NodeOutput:   true,
	NodeAgent:    true,
	NodeDecision: true,
	NodeTool:     true,
	NodeMerge:    true,
	NodeLoop:     true,
	NodeSubflow:  true,
	NodeParallel: true,
}

// Document is the root of a flow YAML file.
type Document struct {
	Version  string      `yaml:"version,omitempty"`
	Metadata *Metadata   `yaml:"metadata,omitempty"`
	Agents   []AgentDef  `yaml:"agents,omitempty"`
	Tools    []ToolDef   `yaml:"tools,omitempty"`
	Prompts  []PromptDef `yaml:"prompts,omitempty"`
	Flows    []FlowDef   `yaml:"flows,omitempty"`
}

// Metadata carries optional descriptive fields.
type Metadata struct {
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// AgentDef declares an agent that flow nodes can reference by id.
type AgentDef struct {
	ID           string        `yaml:"id"`
	Model        string        `yaml:"model"`
	Name         string        `yaml:"name,omitempty"`
	Description  string        `yaml:"description,omitempty"`
	SystemPrompt string        `yaml:"system_prompt,omitempty"`
	Tools        []string      `yaml:"tools,omitempty"`
	Defaults     *CallSettings `yaml:"defaults,omitempty"`
}

// CallSettings overrides completion parameters per agent or per plan step.
type CallSettings struct {
	Model       string       `yaml:"model,omitempty"`
	Temperature *float64     `yaml:"temperature,omitempty"`
	TopP        *float64     `yaml:"top_p,omitempty"`
	MaxTokens   *int64       `yaml:"max_tokens,omitempty"`
	TimeoutMS   *int64       `yaml:"timeout_ms,omitempty"`
	Retry       *RetryPolicy `yaml:"retry,omitempty"`
}

// RetryPolicy declares retry behavior for provider calls.
type RetryPolicy struct {
	Max       int    `yaml:"max"`
	BackoffMS *int64 `yaml:"backoff_ms,omitempty"`
}

// ToolDef declares a tool that agents and tool nodes can reference by id.
type ToolDef struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"`
	Description string `yaml:"description,omitempty"`
	Spec        string `yaml:"spec,omitempty"`
	Function    string `yaml:"function,omitempty"`
}

// PromptDef declares a reusable prompt, inline or loaded from a file.
type PromptDef struct {
	ID          string `yaml:"id"`
	File        string `yaml:"file,omitempty"`
	Text        string `yaml:"text,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// FlowDef is one named graph of nodes and edges.
type FlowDef struct {
	ID        string             `yaml:"id"`
	Entry     string             `yaml:"entry"`
	Nodes     []Node             `yaml:"nodes,omitempty"`
	Edges     []Edge             `yaml:"edges,omitempty"`
	GroupChat *GroupChatSettings `yaml:"group_chat,omitempty"`
	Handoff   *HandoffSettings   `yaml:"handoff,omitempty"`
}

// GroupChatSettings tunes the round-robin group chat built from a flow.
type GroupChatSettings struct {
	MaximumRounds       int `yaml:"maximum_rounds,omitempty"`
	UserPromptFrequency int `yaml:"user_prompt_frequency,omitempty"`
}

// HandoffSettings tunes the handoff orchestrator built from a flow.
type HandoffSettings struct {
	MaxHandoffs  *int       `yaml:"max_handoffs,omitempty"`
	MaxRounds    *int       `yaml:"max_rounds,omitempty"`
	LLMTimeoutMS *int64     `yaml:"llm_timeout_ms,omitempty"`
	Aliases      []AliasDef `yaml:"aliases,omitempty"`
	Rules        []RuleDef  `yaml:"rules,omitempty"`
}

// AliasDef maps an alternative target spelling onto a roster agent.
type AliasDef struct {
	Alias  string `yaml:"alias"`
	Target string `yaml:"target"`
}

// RuleDef declares a deterministic handoff rule. Matcher is one of
// keywords_any, keywords_all or regex.
type RuleDef struct {
	ID       string   `yaml:"id,omitempty"`
	Target   string   `yaml:"target"`
	Message  string   `yaml:"message,omitempty"`
	Matcher  string   `yaml:"matcher"`
	Keywords []string `yaml:"keywords,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`
}

// Node is one graph node. Type selects the kind; the remaining fields are
// kind-specific and left zero elsewhere.
type Node struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Type        NodeType `yaml:"type"`

	// agent
	Agent      string        `yaml:"agent,omitempty"`
	Prompt     string        `yaml:"prompt,omitempty"`
	Tools      []string      `yaml:"tools,omitempty"`
	Parameters *CallSettings `yaml:"parameters,omitempty"`

	// decision
	Strategy string `yaml:"strategy,omitempty"`

	// tool
	Tool      string         `yaml:"tool,omitempty"`
	Arguments map[string]any `yaml:"arguments,omitempty"`

	// loop
	MaxIterations int    `yaml:"max_iterations,omitempty"`
	Condition     string `yaml:"condition,omitempty"`

	// subflow
	Flow string `yaml:"flow,omitempty"`

	// parallel
	Converge *bool `yaml:"converge,omitempty"`
}

// Edge connects two nodes. From may carry an output label as "node:label";
// an empty Condition always matches.
type Edge struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition,omitempty"`
	Label     string `yaml:"label,omitempty"`
}

// ParseDocument decodes and validates a flow YAML document, applying the
// default version when omitted.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("flow: parse yaml: %w", err)
	}

	if doc.Version == "" {
		doc.Version = defaultVersion
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// YAML serializes the document back to YAML.
func (d *Document) YAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("flow: marshal yaml: %w", err)
	}

	return data, nil
}

// Validate checks structural invariants: known node types, resolvable
// entries, referenced agents and bounded loops.
func (d *Document) Validate() error {
	for _, f := range d.Flows {
		if f.ID == "" {
			return &ValidationError{Reason: "flow with empty id"}
		}
		if f.Entry == "" {
			return &ValidationError{Reason: fmt.Sprintf("flow %q has no entry", f.ID)}
		}

		nodeIDs := make(map[string]bool, len(f.Nodes))
		for _, n := range f.Nodes {
			if n.ID == "" {
				return &ValidationError{Reason: fmt.Sprintf("flow %q has a node with empty id", f.ID)}
			}
			if nodeIDs[n.ID] {
				return &ValidationError{Reason: fmt.Sprintf("flow %q has duplicate node id %q", f.ID, n.ID)}
			}
			nodeIDs[n.ID] = true

			if !knownNodeTypes[n.Type] {
				return &ValidationError{Reason: fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type)}
			}

			switch n.Type {
			case NodeAgent:
				if n.Agent == "" {
					return &ValidationError{Reason: fmt.Sprintf("agent node %q names no agent", n.ID)}
				}
			case NodeSubflow:
				if n.Flow == "" {
					return &ValidationError{Reason: fmt.Sprintf("subflow node %q names no flow", n.ID)}
				}
			case NodeLoop:
				if n.MaxIterations < 1 {
					return &InvalidLoopError{Node: n.ID, Reason: "max_iterations must be at least 1"}
				}
			}
		}

		if !nodeIDs[f.Entry] {
			return &ValidationError{Reason: fmt.Sprintf("flow %q entry %q is not a node", f.ID, f.Entry)}
		}
	}

	return nil
}

// FlowByID looks up a flow definition.
func (d *Document) FlowByID(id string) (*FlowDef, error) {
	for i := range d.Flows {
		if d.Flows[i].ID == id {
			return &d.Flows[i], nil
		}
	}

	return nil, &UnknownFlowError{ID: id}
}

// AgentByID looks up an agent definition.
func (d *Document) AgentByID(id string) (*AgentDef, bool) {
	for i := range d.Agents {
		if d.Agents[i].ID == id {
			return &d.Agents[i], true
		}
	}

	return nil, false
}

// nodeByID looks up a node within a flow.
func (f *FlowDef) nodeByID(id string) (*Node, error) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], nil
		}
	}

	return nil, &UnknownNodeError{ID: id}
}

// agentNodeIDs lists the agent ids referenced by agent nodes, in node order.
func (f *FlowDef) agentNodeIDs() []string {
	var ids []string
	for _, n := range f.Nodes {
		if n.Type == NodeAgent {
			ids = append(ids, n.Agent)
		}
	}

	return ids
}

// edgeSource strips an output label from an edge origin: "node:label" means
// node.
func edgeSource(from string) string {
	if i := strings.IndexByte(from, ':'); i >= 0 {
		return from[:i]
	}

	return from
}
