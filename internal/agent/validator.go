package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sheetpilot/sheetpilot/internal/adapter"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// ValidationError wraps a JSON Schema violation in tool arguments.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type compiledSchema struct {
	doc    []byte
	schema *jsonschema.Schema // nil when the document does not compile
}

// ArgumentValidator checks tool arguments against each tool's input schema.
// Compiled schemas are cached per tool and recompiled when the document
// changes.
type ArgumentValidator struct {
	mu    sync.Mutex
	cache map[string]compiledSchema
}

func NewArgumentValidator() *ArgumentValidator {
	return &ArgumentValidator{cache: make(map[string]compiledSchema)}
}

// Validate returns a *ValidationError when args violate tool's schema. A
// schema that cannot be compiled accepts everything; the tool server gets
// the final say.
func (v *ArgumentValidator) Validate(tool schema.ToolDescriptor, args map[string]any) error {
	sch, err := v.compiled(tool)
	if err != nil || sch == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	// Round-trip through the validator's own decoder so numbers arrive as
	// json.Number.
	raw, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Tool: tool.Name, Err: err}
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Tool: tool.Name, Err: err}
	}
	if err := sch.Validate(instance); err != nil {
		return &ValidationError{Tool: tool.Name, Err: err}
	}
	return nil
}

func (v *ArgumentValidator) compiled(tool schema.ToolDescriptor) (*jsonschema.Schema, error) {
	doc, err := schemaDocument(tool.Parameters)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.cache[tool.Name]; ok && bytes.Equal(c.doc, doc) {
		return c.schema, nil
	}

	sch, err := compile(doc)
	v.cache[tool.Name] = compiledSchema{doc: doc, schema: sch}
	return sch, err
}

func compile(doc []byte) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

// schemaDocument prefers the document exactly as the server sent it and
// otherwise rebuilds one from the parsed properties.
func schemaDocument(ps schema.ParameterSchema) ([]byte, error) {
	if len(bytes.TrimSpace(ps.Raw)) > 0 {
		return ps.Raw, nil
	}
	props := make(map[string]any, len(ps.Properties))
	for name, p := range ps.Properties {
		props[name] = adapter.PropertySchema(p)
	}
	doc := map[string]any{"type": "object", "properties": props}
	if len(ps.Required) > 0 {
		doc["required"] = ps.Required
	}
	return json.Marshal(doc)
}
