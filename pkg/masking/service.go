package masking

import (
	"sort"
)

// Service applies the builtin credential patterns to strings and structured
// payloads. A nil *Service is valid and masks nothing.
type Service struct {
	patterns []*CompiledPattern
}

// NewService creates a masking service with all builtin patterns compiled.
func NewService() *Service {
	patterns := compilePatterns()
	// Deterministic application order keeps masked output stable across runs.
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Name < patterns[j].Name
	})
	return &Service{patterns: patterns}
}

// MaskString applies every builtin pattern to s and returns the result.
func (s *Service) MaskString(text string) string {
	if s == nil || text == "" {
		return text
	}
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// MaskMap returns a copy of m with every string leaf masked. Nested maps and
// slices are walked recursively; non-string leaves pass through unchanged.
func (s *Service) MaskMap(m map[string]any) map[string]any {
	if s == nil || m == nil {
		return m
	}
	masked := make(map[string]any, len(m))
	for k, v := range m {
		masked[k] = s.maskValue(v)
	}
	return masked
}

func (s *Service) maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.MaskString(val)
	case map[string]any:
		return s.MaskMap(val)
	case []any:
		masked := make([]any, len(val))
		for i, item := range val {
			masked[i] = s.maskValue(item)
		}
		return masked
	default:
		return v
	}
}

// PatternCount reports how many patterns compiled, for startup logging.
func (s *Service) PatternCount() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}
