package function

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFunction() Function {
	return New("echo", "Echo the input back.", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		return text, nil
	})
}

func TestDefinitionTool(t *testing.T) {
	def := Definition{Name: "lookup", Description: "Look things up."}

	tool := def.Tool()

	assert.Equal(t, "function", tool["type"])

	fn, ok := tool["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lookup", fn["name"])

	params, ok := fn["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
}

func TestRegistryRegisterAndInvoke(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoFunction()))

	result, err := reg.Invoke(context.Background(), "echo", `{"text":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoFunction()))

	err := reg.Register(echoFunction())
	assert.Error(t, err)
}

func TestRegistryUnknownFunction(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Invoke(context.Background(), "missing", "{}")
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestRegistryInvalidArguments(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoFunction()))

	_, err := reg.Invoke(context.Background(), "echo", "{not json")

	var invalidErr *InvalidArgumentsError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestRegistryExecutionError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")

	require.NoError(t, reg.Register(New("fail", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, boom
	})))

	_, err := reg.Invoke(context.Background(), "fail", "")

	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryMarshalsNonStringResults(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(New("stats", "", nil, func(context.Context, map[string]any) (any, error) {
		return map[string]int{"count": 3}, nil
	})))

	result, err := reg.Invoke(context.Background(), "stats", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3}`, result)
}

func TestRegistryDefinitionsPreserveOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(New("b", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })))
	require.NoError(t, reg.Register(New("a", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })))

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
}

func TestSchemaFor(t *testing.T) {
	type weatherArgs struct {
		City string `json:"city" jsonschema:"description=City to query"`
		Days int    `json:"days,omitempty"`
	}

	schema := SchemaFor(weatherArgs{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "days")
}
