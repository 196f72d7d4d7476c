package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across orchestrators. Budget exhaustion gets its
// own kinds so callers can tell "ran out of patience" from "agent or model
// misbehaved".
var (
	// ErrNoAgentsRegistered is returned when a run starts with an empty roster.
	ErrNoAgentsRegistered = errors.New("orchestrator: no agents registered")

	// ErrMaxRoundsReached is returned when the round budget is exhausted
	// without a completion.
	ErrMaxRoundsReached = errors.New("orchestrator: max rounds reached")

	// ErrMaxHandoffsReached is returned when a handoff is requested with an
	// exhausted handoff budget.
	ErrMaxHandoffsReached = errors.New("orchestrator: max handoffs reached")

	// ErrProviderTimeout is returned when a single turn exceeds its timeout.
	ErrProviderTimeout = errors.New("orchestrator: provider timeout")
)

// UnknownAgentError reports a reference to an agent name not in the roster.
type UnknownAgentError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("orchestrator: unknown agent %q", e.Name)
}

// InvalidManagerDecisionError reports an undecodable or inadmissible
// routing decision.
type InvalidManagerDecisionError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvalidManagerDecisionError) Error() string {
	return fmt.Sprintf("orchestrator: invalid manager decision: %s", e.Reason)
}
