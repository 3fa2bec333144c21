package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

func mustParse(t *testing.T, doc string) schema.ParameterSchema {
	t.Helper()
	ps, err := schema.ParseParameterSchema([]byte(doc))
	require.NoError(t, err)
	return ps
}

func TestSanitize_UnsupportedTypeDowngraded(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name:        "set_price",
		Description: "Set a price",
		Parameters: mustParse(t, `{
			"type":"object",
			"properties":{
				"cell":{"type":"string"},
				"amount":{"type":"currency"}
			},
			"required":["cell","amount"]
		}`),
	}

	st, err := Sanitize(tool, Policy{Vendor: "test"}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, schema.TypeString, st.Properties["amount"].Type)
	assert.Equal(t, []string{"cell"}, st.Required)
}

func TestSanitize_DescriptionTruncated(t *testing.T) {
	long := strings.Repeat("x", 250)
	tool := schema.ToolDescriptor{
		Name:        "describe",
		Description: long,
		Parameters: mustParse(t, `{"type":"object","properties":{"p":{"type":"string","description":"`+long+`"}}}`),
	}
	st, err := Sanitize(tool, Policy{Vendor: "test"}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 200)+"...", st.Description)
	assert.Equal(t, strings.Repeat("x", 200)+"...", st.Properties["p"].Description)
}

func TestSanitize_EnumDeduplicated(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name: "format",
		Parameters: mustParse(t, `{"type":"object","properties":{
			"style":{"type":"string","enum":["bold","", "italic","bold","  "]}
		}}`),
	}
	st, err := Sanitize(tool, Policy{Vendor: "test"}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"bold", "italic"}, st.Properties["style"].Enum)
}

func TestSanitize_RequiredKeepsOnlyExistingProperties(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name:       "read",
		Parameters: mustParse(t, `{"type":"object","properties":{"path":{"type":"string"}},"required":["path","ghost","path"]}`),
	}
	st, err := Sanitize(tool, Policy{Vendor: "test"}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"path"}, st.Required)
}

func TestSanitize_ArrayWithoutItemsGetsStringItems(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name:       "write_row",
		Parameters: mustParse(t, `{"type":"object","properties":{"values":{"type":"array"}}}`),
	}
	st, err := Sanitize(tool, Policy{Vendor: "test"}, logging.Nop())
	require.NoError(t, err)
	require.NotNil(t, st.Properties["values"].Items)
	assert.Equal(t, schema.TypeString, st.Properties["values"].Items.Type)
}

func TestSanitize_RejectedTools(t *testing.T) {
	tests := []struct {
		name string
		tool schema.ToolDescriptor
	}{
		{"empty name", schema.ToolDescriptor{Name: ""}},
		{"bad characters", schema.ToolDescriptor{Name: "read sheet!"}},
		{"array root", schema.ToolDescriptor{Name: "list", Parameters: schema.ParameterSchema{Type: schema.TypeArray}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sanitize(tt.tool, Policy{Vendor: "test"}, logging.Nop())
			var convErr *ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Equal(t, "test", convErr.Vendor)
		})
	}
}

func TestSanitizeAll_NeverFailsTheBatch(t *testing.T) {
	tools := []schema.ToolDescriptor{
		{Name: "ok_tool", Parameters: mustParse(t, `{"type":"object","properties":{"a":{"type":"weird"}}}`)},
		{Name: "bad tool"},
		{Name: "another_ok", Parameters: mustParse(t, ``)},
	}
	supported := map[string]bool{schema.TypeString: true, schema.TypeNumber: true}
	out := SanitizeAll(tools, Policy{Vendor: "test", SupportedTypes: supported}, logging.Nop())

	require.Len(t, out, 2)
	for _, st := range out {
		for _, p := range st.Properties {
			assert.True(t, supported[p.Type], "type %q outside vendor set", p.Type)
		}
	}
}

func TestSanitize_FlattenStructured(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name: "write_range",
		Parameters: mustParse(t, `{"type":"object","properties":{
			"sheet":{"type":"string"},
			"rows":{"type":"array","description":"Row data","items":{"type":"array","items":{"type":"string"}}},
			"style":{"type":"object","properties":{"bold":{"type":"boolean"}}}
		},"required":["sheet","rows"]}`),
	}
	st, err := Sanitize(tool, Policy{Vendor: "gemini", FlattenStructured: true}, logging.Nop())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"rows", "style"}, st.Flattened)
	assert.Equal(t, schema.TypeString, st.Properties["rows"].Type)
	assert.Contains(t, st.Properties["rows"].Description, "Row data (JSON-encoded array matching")
	assert.Equal(t, schema.TypeString, st.Properties["style"].Type)
	assert.Equal(t, []string{"sheet", "rows"}, st.Required)
}

func TestRehydrateAndReflatten(t *testing.T) {
	flattened := []string{"rows", "style"}
	in := map[string]any{
		"sheet": "Q1",
		"rows":  `[["a","b"],["c","d"]]`,
		"style": `not json`,
	}
	out := Rehydrate(in, flattened)
	assert.Equal(t, []any{[]any{"a", "b"}, []any{"c", "d"}}, out["rows"])
	assert.Equal(t, "not json", out["style"])
	assert.Equal(t, "Q1", out["sheet"])

	back := Reflatten(out, flattened)
	assert.Equal(t, `[["a","b"],["c","d"]]`, back["rows"])
	assert.Equal(t, "not json", back["style"])
}

func TestJSONSchema(t *testing.T) {
	tool := schema.ToolDescriptor{
		Name:       "read",
		Parameters: mustParse(t, `{"type":"object","properties":{"path":{"type":"string","description":"file"}},"required":["path"]}`),
	}
	st, err := Sanitize(tool, Policy{Vendor: "test"}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "file"},
		},
		"required": []string{"path"},
	}, st.JSONSchema())
}
