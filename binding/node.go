// Package binding implements the node type registry and the binding
// engine §4.3 describes: typed input/output JSON-schema validation,
// "{{ path }}" variable substitution against a layered binding context,
// and the dual string/structured condition evaluator shared by node and
// edge guards. Schema validation is grounded on the teacher's
// registry/service.go validatePayloadJSONAgainstSchema helper, generalized
// from a single payload check into a reusable per-NodeType validator with
// its own compile cache, mirroring signal.Pattern's cache shape.
package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// Capabilities advertises optional node behavior the executor and
	// reactive layer branch on.
	Capabilities struct {
		NeedsBindingContext bool
		SupportsInbox       bool
		IsStreaming         bool
	}

	// RunFunc executes a node against its (already bound and validated)
	// input, returning the node's output.
	RunFunc func(ctx context.Context, input any) (any, error)

	// NodeType is one registered node type: its name, its input/output
	// JSON schemas, and its run function.
	NodeType struct {
		Type         string
		InputSchema  json.RawMessage
		OutputSchema json.RawMessage
		Capabilities Capabilities
		Run          RunFunc
	}

	// Registry holds every registered NodeType along with a compiled-schema
	// cache so repeated validation of the same node type does not pay
	// jsonschema compilation cost on every node execution.
	Registry struct {
		mu    sync.RWMutex
		types map[string]NodeType

		schemaMu sync.Mutex
		schemas  map[string]*jsonschema.Schema // keyed by "<type>:in" / "<type>:out"
	}
)

// NewRegistry constructs an empty node type registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[string]NodeType),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// ErrUnknownNodeType is returned by Get/ValidateInput/ValidateOutput for a
// node type that was never registered.
type ErrUnknownNodeType struct{ Type string }

func (e *ErrUnknownNodeType) Error() string { return fmt.Sprintf("binding: unknown node type %q", e.Type) }

// Register adds nt to the registry, overwriting any existing registration
// for the same Type.
func (r *Registry) Register(nt NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[nt.Type] = nt
}

// Get returns the registered NodeType, or ErrUnknownNodeType.
func (r *Registry) Get(nodeType string) (NodeType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nt, ok := r.types[nodeType]
	if !ok {
		return NodeType{}, &ErrUnknownNodeType{Type: nodeType}
	}
	return nt, nil
}

// ValidateInput validates value against nodeType's input schema. A nil or
// empty schema always validates. Schema failures are returned verbatim
// from jsonschema so callers can surface the exact violated keyword.
func (r *Registry) ValidateInput(nodeType string, value any) error {
	nt, err := r.Get(nodeType)
	if err != nil {
		return err
	}
	return r.validate(nodeType+":in", nt.InputSchema, value)
}

// ValidateOutput validates value against nodeType's output schema.
func (r *Registry) ValidateOutput(nodeType string, value any) error {
	nt, err := r.Get(nodeType)
	if err != nil {
		return err
	}
	return r.validate(nodeType+":out", nt.OutputSchema, value)
}

func (r *Registry) validate(cacheKey string, raw json.RawMessage, value any) error {
	if len(raw) == 0 {
		return nil
	}
	schema, err := r.compiled(cacheKey, raw)
	if err != nil {
		return err
	}

	// jsonschema validates against decoded-JSON shapes (map[string]any,
	// []any, float64, ...), so values built in Go (structs, typed slices)
	// are round-tripped through JSON first, matching the teacher's own
	// validatePayloadJSONAgainstSchema approach of unmarshaling both sides
	// before validating.
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("binding: marshal value for validation: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return fmt.Errorf("binding: unmarshal value for validation: %w", err)
	}
	return schema.Validate(decoded)
}

func (r *Registry) compiled(cacheKey string, raw json.RawMessage) (*jsonschema.Schema, error) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if s, ok := r.schemas[cacheKey]; ok {
		return s, nil
	}

	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return nil, fmt.Errorf("binding: unmarshal schema %s: %w", cacheKey, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(cacheKey, schemaDoc); err != nil {
		return nil, fmt.Errorf("binding: add schema resource %s: %w", cacheKey, err)
	}
	schema, err := c.Compile(cacheKey)
	if err != nil {
		return nil, fmt.Errorf("binding: compile schema %s: %w", cacheKey, err)
	}
	r.schemas[cacheKey] = schema
	return schema, nil
}
