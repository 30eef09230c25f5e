package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/nidhogg/calcaro/internal/provider"
)

var (
	// ErrUnknownFunction is returned when the model names a function that is
	// not registered.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrInvalidArguments is returned when the model's arguments do not match
	// the function's parameter schema.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrDuplicateFunction is returned when two functions share a name.
	ErrDuplicateFunction = errors.New("duplicate function")
)

// Args is the decoded argument object of a function call.
type Args map[string]any

// Handler computes a function result. The result must be JSON-serializable.
type Handler func(ctx context.Context, args Args) (any, error)

// Function is a named tool the model may call.
type Function struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema object advertised to the model
	Call        Handler
}

// NewFunction declares a function whose arguments decode into T.
// The parameter schema is reflected from T; fields tagged
// `jsonschema:"required"` are required.
func NewFunction[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) Function {
	return Function{
		Name:        name,
		Description: description,
		Parameters:  SchemaFor[T](),
		Call: func(ctx context.Context, args Args) (any, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			var typed T
			if err := json.Unmarshal(raw, &typed); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			return fn(ctx, typed)
		},
	}
}

// SchemaFor reflects the JSON schema object for T.
func SchemaFor[T any]() map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	var zero T
	raw, err := json.Marshal(r.Reflect(zero))
	if err != nil {
		panic(fmt.Sprintf("reflect schema for %T: %v", zero, err))
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("decode schema for %T: %v", zero, err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// Registry holds the functions available to the model. It is immutable
// after construction and safe for concurrent reads.
type Registry struct {
	fns   []Function
	index map[string]int
}

// NewRegistry builds a registry, rejecting empty and duplicate names.
func NewRegistry(fns ...Function) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(fns))}
	for _, fn := range fns {
		if fn.Name == "" {
			return nil, errors.New("function name is required")
		}
		if fn.Call == nil {
			return nil, fmt.Errorf("function %s has no handler", fn.Name)
		}
		if _, dup := r.index[fn.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFunction, fn.Name)
		}
		if fn.Parameters == nil {
			fn.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		r.index[fn.Name] = len(r.fns)
		r.fns = append(r.fns, fn)
	}
	return r, nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	i, ok := r.index[name]
	if !ok {
		return Function{}, false
	}
	return r.fns[i], true
}

// Names returns function names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.fns))
	for i, fn := range r.fns {
		names[i] = fn.Name
	}
	return names
}

// Schemas returns the definitions advertised to the model.
func (r *Registry) Schemas() []provider.FunctionSchema {
	out := make([]provider.FunctionSchema, len(r.fns))
	for i, fn := range r.fns {
		out[i] = provider.FunctionSchema{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		}
	}
	return out
}

// Invoke decodes rawArgs, validates them against the function's schema and
// runs it.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	args, err := DecodeArgs(rawArgs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := ValidateArgs(fn.Parameters, args); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return fn.Call(ctx, args)
}

// DecodeArgs parses the model's JSON-encoded argument object. Empty input
// is treated as an empty object.
func DecodeArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args == nil {
		return nil, fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}
	return args, nil
}

// ValidateArgs checks required properties, primitive type tags and
// additionalProperties=false of a JSON schema object.
func ValidateArgs(schema map[string]any, args Args) error {
	props, _ := schema["properties"].(map[string]any)

	for _, name := range stringList(schema["required"]) {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("%w: missing required %q", ErrInvalidArguments, name)
		}
	}

	closed := schema["additionalProperties"] == false
	for name, value := range args {
		prop, known := props[name].(map[string]any)
		if !known {
			if closed {
				return fmt.Errorf("%w: unexpected %q", ErrInvalidArguments, name)
			}
			continue
		}
		types := stringList(prop["type"])
		if len(types) == 0 {
			continue
		}
		if !matchesAny(types, value) {
			return fmt.Errorf("%w: %q must be %s", ErrInvalidArguments, name, strings.Join(types, " or "))
		}
	}
	return nil
}

func matchesAny(types []string, v any) bool {
	for _, t := range types {
		if matchesType(t, v) {
			return true
		}
	}
	return false
}

func matchesType(t string, v any) bool {
	switch t {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "null":
		return v == nil
	}
	return true
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
