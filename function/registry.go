package function

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownFunction is returned when a call names a function that was never
// registered.
var ErrUnknownFunction = errors.New("function: unknown function")

// InvalidArgumentsError reports arguments that could not be decoded.
type InvalidArgumentsError struct {
	Function string
	Err      error
}

// Error implements the error interface.
func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("function %s: invalid arguments: %v", e.Function, e.Err)
}

// Unwrap exposes the decoding error.
func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure inside the function body.
type ExecutionError struct {
	Function string
	Err      error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("function %s: execution failed: %v", e.Function, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Registry holds functions by name, preserving registration order for
// deterministic definition listings. Not safe for concurrent mutation;
// register everything before a run starts.
type Registry struct {
	order     []string
	functions map[string]Function
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]Function)}
}

// Register adds a function. Duplicate names are an error.
func (r *Registry) Register(fn Function) error {
	name := fn.Definition().Name
	if name == "" {
		return errors.New("function: empty function name")
	}

	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("function: duplicate function name %q", name)
	}

	r.functions[name] = fn
	r.order = append(r.order, name)

	return nil
}

// Get looks up a function by name.
func (r *Registry) Get(name string) (Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Len reports the number of registered functions.
func (r *Registry) Len() int { return len(r.order) }

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.functions[name].Definition())
	}

	return defs
}

// Tools returns all definitions in wire shape, ready for a
// core.CompletionRequest.
func (r *Registry) Tools() []map[string]any {
	tools := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.functions[name].Definition().Tool())
	}

	return tools
}

// Invoke decodes the JSON arguments and executes the named function. The
// result is returned as a JSON string so callers can treat it opaquely.
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	fn, ok := r.functions[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", &InvalidArgumentsError{Function: name, Err: err}
		}
	}

	result, err := fn.Invoke(ctx, args)
	if err != nil {
		return "", &ExecutionError{Function: name, Err: err}
	}

	switch v := result.(type) {
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", &ExecutionError{Function: name, Err: err}
		}
		return string(data), nil
	}
}
