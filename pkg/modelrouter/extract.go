package modelrouter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON unmarshals the first JSON object found in model output into v.
// Models wrap JSON in code fences and prose despite instructions, so the
// extractor strips a leading fence and trims to the outermost brace pair
// before parsing.
func ExtractJSON(raw string, v any) error {
	cleaned := strings.TrimSpace(raw)

	if i := strings.Index(cleaned, "```"); i >= 0 {
		rest := cleaned[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		cleaned = strings.TrimSpace(rest)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output (%d bytes)", len(raw))
	}

	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse model output as JSON: %w", err)
	}
	return nil
}
