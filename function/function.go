// Package function defines callable tools that agents may advertise to the
// model: a Definition (name + JSON schema), a Function interface, and an
// ordered Registry that dispatches model tool calls.
package function

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Definition describes one callable function in provider-neutral form.
// Parameters holds a JSON-schema object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool returns the wire shape advertised to completion providers.
func (d Definition) Tool() map[string]any {
	params := d.Parameters
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  params,
		},
	}
}

// Function is a callable tool.
type Function interface {
	// Definition returns the schema advertised to the model.
	Definition() Definition

	// Invoke executes the function with decoded arguments.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// funcAdapter adapts a plain Go function to the Function interface.
type funcAdapter struct {
	def Definition
	fn  func(ctx context.Context, args map[string]any) (any, error)
}

// New creates a Function from a name, description, parameter schema and
// implementation.
func New(name, description string, parameters map[string]any, fn func(ctx context.Context, args map[string]any) (any, error)) Function {
	return &funcAdapter{
		def: Definition{Name: name, Description: description, Parameters: parameters},
		fn:  fn,
	}
}

func (f *funcAdapter) Definition() Definition { return f.def }

func (f *funcAdapter) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}

// SchemaFor derives a JSON-schema object from a Go struct. Field names come
// from json tags; `jsonschema` tags add descriptions and constraints.
func SchemaFor(v any) map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	schema := reflector.Reflect(v)
	schema.Version = "" // inline schemas carry no $schema header

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	delete(out, "$schema")
	out["type"] = "object"

	return out
}
