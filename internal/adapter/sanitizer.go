// Package adapter converts the unified tool schema and conversation
// messages into each AI vendor's wire types and normalises their replies.
package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/sheetpilot/sheetpilot/internal/schema"
	"github.com/sheetpilot/sheetpilot/internal/shared/llmutils"
)

// MaxDescriptionLength bounds tool and property descriptions.
const MaxDescriptionLength = 200

var defaultNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Policy describes what one vendor accepts.
type Policy struct {
	Vendor string
	// SupportedTypes lists accepted property types. Nil accepts all six
	// unified types.
	SupportedTypes map[string]bool
	// FlattenStructured turns top-level object and array parameters into
	// strings carrying JSON; the structure is described in the description.
	FlattenStructured bool
	NamePattern       *regexp.Regexp
}

func (p Policy) supports(t string) bool {
	if !schema.IsSupportedType(t) {
		return false
	}
	return p.SupportedTypes == nil || p.SupportedTypes[t]
}

// ConversionError reports a tool or property that a vendor cannot
// represent. It is logged and the item dropped; it never aborts a batch.
type ConversionError struct {
	Vendor   string
	Tool     string
	Property string
	Reason   string
}

func (e *ConversionError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: tool %q property %q: %s", e.Vendor, e.Tool, e.Property, e.Reason)
	}
	return fmt.Sprintf("%s: tool %q: %s", e.Vendor, e.Tool, e.Reason)
}

// SanitizedTool is a ToolDescriptor reduced to what a vendor accepts.
type SanitizedTool struct {
	Name        string
	Description string
	Properties  map[string]*schema.Property
	Required    []string
	// Flattened names parameters whose JSON string values must be decoded
	// before the call reaches the tool server.
	Flattened []string
}

// Sanitize applies p to t. It returns a *ConversionError when the tool as
// a whole cannot be represented.
func Sanitize(t schema.ToolDescriptor, p Policy, logger *slog.Logger) (SanitizedTool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pattern := p.NamePattern
	if pattern == nil {
		pattern = defaultNamePattern
	}
	if t.Name == "" {
		return SanitizedTool{}, &ConversionError{Vendor: p.Vendor, Reason: "empty tool name"}
	}
	if !pattern.MatchString(t.Name) {
		return SanitizedTool{}, &ConversionError{Vendor: p.Vendor, Tool: t.Name, Reason: "name has characters the vendor rejects"}
	}
	if rootType := t.Parameters.Type; rootType != "" && rootType != schema.TypeObject {
		return SanitizedTool{}, &ConversionError{Vendor: p.Vendor, Tool: t.Name, Reason: "parameter root is " + rootType + ", not object"}
	}

	out := SanitizedTool{
		Name:        t.Name,
		Description: llmutils.Truncate(strings.TrimSpace(t.Description), MaxDescriptionLength),
		Properties:  make(map[string]*schema.Property, len(t.Parameters.Properties)),
	}
	downgraded := make(map[string]bool)
	for _, name := range sortedKeys(t.Parameters.Properties) {
		prop := t.Parameters.Properties[name]
		if prop == nil {
			continue
		}
		clean, lossy := sanitizeProperty(prop, p, t.Name, name, logger)
		if lossy {
			downgraded[name] = true
		}
		if p.FlattenStructured && (clean.Type == schema.TypeObject || clean.Type == schema.TypeArray) {
			clean = flatten(clean)
			out.Flattened = append(out.Flattened, name)
		}
		out.Properties[name] = clean
	}
	out.Required = filterRequired(t.Parameters.Required, out.Properties, downgraded)
	return out, nil
}

// SanitizeAll sanitises every tool, logging and dropping the ones that
// cannot be converted.
func SanitizeAll(tools []schema.ToolDescriptor, p Policy, logger *slog.Logger) []SanitizedTool {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]SanitizedTool, 0, len(tools))
	for _, t := range tools {
		st, err := Sanitize(t, p, logger)
		if err != nil {
			logger.Warn("adapter.tool_dropped", "vendor", p.Vendor, "error", err.Error())
			continue
		}
		out = append(out, st)
	}
	return out
}

// sanitizeProperty returns the cleaned property and whether its own type
// had to be downgraded. A downgraded property is no longer required.
func sanitizeProperty(in *schema.Property, p Policy, tool, path string, logger *slog.Logger) (*schema.Property, bool) {
	out := &schema.Property{
		Type:        in.Type,
		Description: llmutils.Truncate(strings.TrimSpace(in.Description), MaxDescriptionLength),
	}
	downgraded := false
	if !p.supports(out.Type) {
		logger.Warn("adapter.type_downgraded",
			"vendor", p.Vendor, "tool", tool, "property", path,
			"from", in.Type, "to", schema.TypeString)
		out.Type = schema.TypeString
		downgraded = true
	}

	switch out.Type {
	case schema.TypeString:
		out.Enum = dedupeEnum(in.Enum)
	case schema.TypeArray:
		if in.Items != nil {
			out.Items, _ = sanitizeProperty(in.Items, p, tool, path+"[]", logger)
		} else {
			out.Items = &schema.Property{Type: schema.TypeString}
		}
	case schema.TypeObject:
		out.Properties = make(map[string]*schema.Property, len(in.Properties))
		lossy := make(map[string]bool)
		for _, name := range sortedKeys(in.Properties) {
			if child := in.Properties[name]; child != nil {
				var d bool
				out.Properties[name], d = sanitizeProperty(child, p, tool, path+"."+name, logger)
				if d {
					lossy[name] = true
				}
			}
		}
		out.Required = filterRequired(in.Required, out.Properties, lossy)
	}
	return out, downgraded
}

// flatten replaces a structured property with a string that carries the
// structure as JSON.
func flatten(prop *schema.Property) *schema.Property {
	shape, _ := json.Marshal(PropertySchema(prop))
	desc := prop.Description
	if desc != "" {
		desc += " "
	}
	desc += fmt.Sprintf("(JSON-encoded %s matching %s)", prop.Type, shape)
	return &schema.Property{Type: schema.TypeString, Description: desc}
}

func dedupeEnum(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterRequired(required []string, props map[string]*schema.Property, exclude map[string]bool) []string {
	var out []string
	seen := make(map[string]bool, len(required))
	for _, r := range required {
		if _, ok := props[r]; ok && !seen[r] && !exclude[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func sortedKeys(m map[string]*schema.Property) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSONSchema renders the sanitised parameters as a JSON Schema object.
func (t SanitizedTool) JSONSchema() map[string]any {
	props := make(map[string]any, len(t.Properties))
	for name, p := range t.Properties {
		props[name] = PropertySchema(p)
	}
	out := map[string]any{
		"type":       schema.TypeObject,
		"properties": props,
	}
	if len(t.Required) > 0 {
		out["required"] = t.Required
	}
	return out
}

// PropertySchema renders one property as JSON Schema.
func PropertySchema(p *schema.Property) map[string]any {
	out := map[string]any{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Items != nil {
		out["items"] = PropertySchema(p.Items)
	}
	if p.Type == schema.TypeObject {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = PropertySchema(child)
		}
		out["properties"] = props
		if len(p.Required) > 0 {
			out["required"] = p.Required
		}
	}
	return out
}

// Rehydrate decodes the JSON string values of flattened parameters in
// place. Values that are not valid JSON are left as strings.
func Rehydrate(input map[string]any, flattened []string) map[string]any {
	for _, name := range flattened {
		s, ok := input[name].(string)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			input[name] = v
		}
	}
	return input
}

// Reflatten is the inverse of Rehydrate, used when replaying history to a
// vendor that only saw the string form.
func Reflatten(input map[string]any, flattened []string) map[string]any {
	if len(flattened) == 0 {
		return input
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	for _, name := range flattened {
		v, ok := out[name]
		if !ok {
			continue
		}
		if _, isString := v.(string); isString {
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			out[name] = string(b)
		}
	}
	return out
}
