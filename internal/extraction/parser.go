package extraction

import (
	"encoding/json"
	"strings"
)

// decodeLenient parses model output that should be a JSON object but may
// arrive wrapped in markdown fences or surrounded by prose. Returns false
// when no parseable object can be found; callers treat that as an empty
// extraction.
func decodeLenient(raw string, target any) bool {
	raw = stripCodeFences(raw)

	if json.Unmarshal([]byte(raw), target) == nil {
		return true
	}

	// Prose around the object: take the outermost brace span and retry.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), target) == nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line (```json).
		if first := strings.TrimSpace(s[:idx]); first == "" || isLanguageTag(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) <= 16
}
