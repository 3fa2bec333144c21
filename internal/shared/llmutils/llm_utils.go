package llmutils

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/sheetpilot/sheetpilot/internal/schema"
)

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Truncate shortens a string to at most n characters, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// StripThink removes <think>…</think> blocks that some models embed.
func StripThink(s string) string {
	return reThink.ReplaceAllString(s, "")
}

// ToolHint generates a short hint string for a list of tool_use blocks, e.g. `read_sheet("budget.xlsx")`.
// The hint shows the first non-empty string argument in key order.
func ToolHint(uses []schema.ContentBlock) string {
	parts := make([]string, 0, len(uses))
	for _, tu := range uses {
		var firstVal string
		for _, k := range slices.Sorted(maps.Keys(tu.Input)) {
			if s, ok := tu.Input[k].(string); ok && s != "" {
				firstVal = s
				break
			}
		}
		if firstVal == "" {
			parts = append(parts, tu.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", tu.Name, Truncate(firstVal, 40)))
	}
	return strings.Join(parts, ", ")
}
