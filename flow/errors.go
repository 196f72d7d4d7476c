package flow

import "fmt"

// UnknownFlowError reports a flow id that is not defined in the document.
type UnknownFlowError struct {
	ID string
}

// Error implements the error interface.
func (e *UnknownFlowError) Error() string {
	return fmt.Sprintf("flow: unknown flow %q", e.ID)
}

// UnknownNodeError reports an edge or entry pointing at a node that does not
// exist.
type UnknownNodeError struct {
	ID string
}

// Error implements the error interface.
func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("flow: unknown node %q", e.ID)
}

// SubflowCycleError reports a subflow chain that references a flow already
// on the expansion stack.
type SubflowCycleError struct {
	Flow string
}

// Error implements the error interface.
func (e *SubflowCycleError) Error() string {
	return fmt.Sprintf("flow: subflow cycle through %q", e.Flow)
}

// NoMatchingEdgeError reports a node whose outgoing edges all failed their
// conditions.
type NoMatchingEdgeError struct {
	Node string
}

// Error implements the error interface.
func (e *NoMatchingEdgeError) Error() string {
	return fmt.Sprintf("flow: no matching edge out of node %q", e.Node)
}

// UnsupportedNodeError reports a node kind the sequential planner cannot
// express.
type UnsupportedNodeError struct {
	Node string
}

// Error implements the error interface.
func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("flow: unsupported node %q in sequential plan", e.Node)
}

// MissingOutputError reports a flow whose plan contains no agent steps.
type MissingOutputError struct {
	Flow string
}

// Error implements the error interface.
func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("flow: flow %q plans no agent steps", e.Flow)
}

// InvalidLoopError reports a loop node with an unusable bound.
type InvalidLoopError struct {
	Node   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidLoopError) Error() string {
	return fmt.Sprintf("flow: loop node %q: %s", e.Node, e.Reason)
}

// AgentNotFoundError reports a plan step referencing an agent id with no
// definition.
type AgentNotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("flow: agent %q is not defined", e.ID)
}

// WalkLimitError reports a walk that exceeded the safety valve, which means
// the graph cycles without a bounded loop node.
type WalkLimitError struct {
	Flow string
}

// Error implements the error interface.
func (e *WalkLimitError) Error() string {
	return fmt.Sprintf("flow: walk limit exceeded in flow %q", e.Flow)
}

// ValidationError reports a structurally invalid document.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow: invalid document: %s", e.Reason)
}
