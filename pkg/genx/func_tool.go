package genx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

var _ Tool = (*FuncTool)(nil)

// InvokeFunc handles a call with its arguments decoded into T.
type InvokeFunc[T any] func(ctx context.Context, call *FuncCall, arg T) (any, error)

// FuncTool is a function the model can call. Argument is the JSON schema
// of its parameters, derived from the Go argument type.
type FuncTool struct {
	Name        string
	Description string
	Argument    *jsonschema.Schema

	// Invoke receives the raw JSON arguments.
	Invoke InvokeFunc[string]
}

func (*FuncTool) isTool() {}

// NewFuncCall binds args to the tool.
func (t *FuncTool) NewFuncCall(args string) *FuncCall {
	return &FuncCall{Name: t.Name, Arguments: args, tool: t}
}

// NewFuncTool builds a tool whose schema is inferred from T. With no fn the
// tool decodes the arguments and returns a *T.
func NewFuncTool[T any](name, description string, fn ...InvokeFunc[T]) (*FuncTool, error) {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("genx: schema for tool %s: %w", name, err)
	}
	var handle InvokeFunc[T]
	if len(fn) > 0 {
		handle = fn[0]
	}
	return &FuncTool{
		Name:        name,
		Description: description,
		Argument:    schema,
		Invoke: func(ctx context.Context, call *FuncCall, raw string) (any, error) {
			var v T
			if err := decodeArgs(raw, &v); err != nil {
				return nil, fmt.Errorf("genx: %s arguments: %w", name, err)
			}
			if handle == nil {
				return &v, nil
			}
			return handle(ctx, call, v)
		},
	}, nil
}

// MustNewFuncTool is NewFuncTool that panics on error.
func MustNewFuncTool[T any](name, description string, fn ...InvokeFunc[T]) *FuncTool {
	t, err := NewFuncTool(name, description, fn...)
	if err != nil {
		panic(err)
	}
	return t
}

// decodeArgs unmarshals tool arguments. Models sometimes emit almost-JSON
// (trailing commas, unquoted keys); a syntax error is retried once after
// jsonrepair.
func decodeArgs(raw string, v any) error {
	if raw == "" {
		raw = "{}"
	}
	err := json.Unmarshal([]byte(raw), v)
	var syn *json.SyntaxError
	if err == nil || !errors.As(err, &syn) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(raw)
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
