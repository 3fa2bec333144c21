package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parameter types understood by the unified schema.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// IsSupportedType reports whether t is one of the six unified parameter types.
func IsSupportedType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// ToolDescriptor describes one operation exposed by the tool server.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  ParameterSchema
}

// ParameterSchema is the root object schema of a tool's arguments.
// Raw keeps the document exactly as the tool server sent it so argument
// validation sees every keyword, not only the ones modelled here.
type ParameterSchema struct {
	Type       string
	Properties map[string]*Property
	Required   []string
	Raw        json.RawMessage
}

// Property is one named parameter. Items is set for arrays; Properties and
// Required for nested objects.
type Property struct {
	Type        string
	Description string
	Enum        []string
	Items       *Property
	Properties  map[string]*Property
	Required    []string
}

// Clone returns a deep copy of p.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	out := *p
	out.Enum = append([]string(nil), p.Enum...)
	out.Required = append([]string(nil), p.Required...)
	out.Items = p.Items.Clone()
	if p.Properties != nil {
		out.Properties = make(map[string]*Property, len(p.Properties))
		for k, v := range p.Properties {
			out.Properties[k] = v.Clone()
		}
	}
	return &out
}

// ToolInvocation is a request to run Name with Arguments.
type ToolInvocation struct {
	Name      string
	Arguments map[string]any
}

// ToolOutcome is the result of a ToolInvocation. Text carries the payload on
// success and the error message otherwise.
type ToolOutcome struct {
	Success bool
	Text    string
}

type rawProperty struct {
	Type        json.RawMessage         `json:"type"`
	Description string                  `json:"description"`
	Enum        []any                   `json:"enum"`
	Items       *rawProperty            `json:"items"`
	Properties  map[string]*rawProperty `json:"properties"`
	Required    []string                `json:"required"`
}

// ParseParameterSchema decodes a JSON Schema document (an MCP inputSchema)
// into a ParameterSchema. An empty document yields an object with no
// properties.
func ParseParameterSchema(data []byte) (ParameterSchema, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return ParameterSchema{
			Type:       TypeObject,
			Properties: map[string]*Property{},
			Raw:        json.RawMessage(`{"type":"object","properties":{}}`),
		}, nil
	}

	var root rawProperty
	if err := json.Unmarshal(data, &root); err != nil {
		return ParameterSchema{}, fmt.Errorf("parse input schema: %w", err)
	}

	ps := ParameterSchema{
		Type:       schemaType(root.Type),
		Properties: convertProperties(root.Properties),
		Required:   append([]string(nil), root.Required...),
		Raw:        append(json.RawMessage(nil), data...),
	}
	if ps.Type == "" {
		ps.Type = TypeObject
	}
	return ps, nil
}

func convertProperties(in map[string]*rawProperty) map[string]*Property {
	out := make(map[string]*Property, len(in))
	for name, rp := range in {
		if rp == nil {
			continue
		}
		out[name] = convertProperty(rp)
	}
	return out
}

func convertProperty(rp *rawProperty) *Property {
	p := &Property{
		Type:        schemaType(rp.Type),
		Description: rp.Description,
		Required:    append([]string(nil), rp.Required...),
	}
	for _, e := range rp.Enum {
		if s, ok := e.(string); ok {
			p.Enum = append(p.Enum, s)
		} else if e != nil {
			p.Enum = append(p.Enum, fmt.Sprint(e))
		}
	}
	if rp.Items != nil {
		p.Items = convertProperty(rp.Items)
	}
	if len(rp.Properties) > 0 {
		p.Properties = convertProperties(rp.Properties)
	}
	return p
}

// schemaType accepts both "type":"x" and "type":["x","null"].
func schemaType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.ToLower(strings.TrimSpace(single))
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" && t != "null" {
				return t
			}
		}
	}
	return ""
}
