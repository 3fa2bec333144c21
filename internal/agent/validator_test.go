package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetpilot/sheetpilot/internal/schema"
)

func TestArgumentValidator_RawSchema(t *testing.T) {
	ps, err := schema.ParseParameterSchema([]byte(`{
		"type":"object",
		"properties":{
			"sheet":{"type":"string"},
			"rows":{"type":"integer","minimum":1}
		},
		"required":["sheet"]
	}`))
	require.NoError(t, err)
	tool := schema.ToolDescriptor{Name: "insert_rows", Parameters: ps}
	v := NewArgumentValidator()

	assert.NoError(t, v.Validate(tool, map[string]any{"sheet": "S1", "rows": float64(3)}))

	err = v.Validate(tool, map[string]any{"rows": float64(3)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "insert_rows", verr.Tool)

	assert.Error(t, v.Validate(tool, map[string]any{"sheet": "S1", "rows": float64(0)}))
	assert.Error(t, v.Validate(tool, map[string]any{"sheet": "S1", "rows": 1.5}))
}

func TestArgumentValidator_BuiltSchema(t *testing.T) {
	v := NewArgumentValidator()
	assert.NoError(t, v.Validate(readRangeTool, map[string]any{"range": "A1"}))
	assert.Error(t, v.Validate(readRangeTool, nil))
}

func TestArgumentValidator_UncompilableSchemaAcceptsAll(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name:       "odd",
		Parameters: schema.ParameterSchema{Raw: json.RawMessage(`{"type":"currency"}`)},
	}
	v := NewArgumentValidator()
	assert.NoError(t, v.Validate(tool, map[string]any{"x": 1}))
	assert.NoError(t, v.Validate(tool, map[string]any{"x": 2}))
}

func TestArgumentValidator_RecompilesOnChange(t *testing.T) {
	v := NewArgumentValidator()
	loose := schema.ToolDescriptor{Name: "t", Parameters: schema.ParameterSchema{Raw: json.RawMessage(`{"type":"object"}`)}}
	strict := schema.ToolDescriptor{Name: "t", Parameters: schema.ParameterSchema{Raw: json.RawMessage(`{"type":"object","required":["a"]}`)}}

	assert.NoError(t, v.Validate(loose, map[string]any{}))
	assert.Error(t, v.Validate(strict, map[string]any{}))
}
