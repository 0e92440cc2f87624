package llm

import (
	"encoding/json"
	"strings"
)

// StripFences removes a surrounding markdown code fence from a model
// response. Vision models frequently wrap JSON answers in ```json blocks
// even when told not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag on the opening fence line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParsePageClassification decodes a batch page-classification response,
// tolerating code fences and leading prose before the JSON object.
func ParsePageClassification(raw string) (*PageClassification, error) {
	s := StripFences(raw)
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	var out PageClassification
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
