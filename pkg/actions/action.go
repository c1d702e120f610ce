package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Args are the named arguments of an action call, decoded from JSON.
type Args map[string]any

// String returns the string argument key, or "" when absent or not a string.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns the integer argument key. JSON numbers decode as float64 or
// json.Number; both are accepted.
func (a Args) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), v == float64(int(v))
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Bool returns the boolean argument key.
func (a Args) Bool(key string) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

// clone returns a shallow copy so defaults never leak into the caller's map.
func (a Args) clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ArgSchema is a JSON Schema document describing an action's arguments.
// The top level must be an object schema.
type ArgSchema map[string]any

// ObjectSchema builds an object schema from property schemas and the names
// of required properties.
func ObjectSchema(properties map[string]any, required ...string) ArgSchema {
	s := ArgSchema{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// EmptySchema describes an action that takes no arguments.
func EmptySchema() ArgSchema {
	return ObjectSchema(map[string]any{})
}

// Action is a named capability the model can invoke.
type Action interface {
	// Name is the identifier the model uses to request the action.
	Name() string

	// Description tells the model what the action does.
	Description() string

	// Schema describes the accepted arguments.
	Schema() ArgSchema

	// Invoke runs the action. Implementations should honor ctx; the
	// registry abandons the call when its deadline passes either way.
	Invoke(ctx context.Context, args Args) (any, error)
}

// HandlerFunc is the signature of a plain-function action.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Func adapts a function to the Action interface.
type Func struct {
	name        string
	description string
	schema      ArgSchema
	fn          HandlerFunc
}

// NewFunc creates an action from a function. A nil schema means the action
// takes no arguments.
func NewFunc(name, description string, schema ArgSchema, fn HandlerFunc) *Func {
	if schema == nil {
		schema = EmptySchema()
	}
	return &Func{name: name, description: description, schema: schema, fn: fn}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }
func (f *Func) Schema() ArgSchema   { return f.schema }

func (f *Func) Invoke(ctx context.Context, args Args) (any, error) {
	return f.fn(ctx, args)
}

// Call is a request from the model to run an action.
type Call struct {
	// ID correlates the call with its result turn.
	ID string `json:"id"`

	// Name is the requested action.
	Name string `json:"name"`

	// Arguments are the decoded arguments.
	Arguments Args `json:"arguments"`
}

// Spec advertises a registered action to the model.
type Spec struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Parameters  ArgSchema `json:"parameters"`
}

// Result is the outcome of a successful invocation.
type Result struct {
	Call     Call
	Value    any
	Duration time.Duration
}

// Text serializes the value for the conversation: strings verbatim,
// everything else as JSON.
func (r Result) Text() string {
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprintf("%v", r.Value)
	}
	return string(data)
}
