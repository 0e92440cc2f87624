package llm

// BuildPageClassificationSchema returns a JSON-Schema (draft 2020-12 subset)
// for a batch page-classification response of exactly pageCount entries.
// We send it to the model as an output constraint and also validate the
// response locally before trusting it.
func BuildPageClassificationSchema(pageCount int) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"pages"},
		"properties": map[string]any{
			"pages": map[string]any{
				"type":     "array",
				"minItems": pageCount,
				"maxItems": pageCount,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"position", "kind"},
					"properties": map[string]any{
						"position": map[string]any{"type": "integer", "minimum": 1},
						"kind":     map[string]any{"type": "string", "enum": []string{"signin", "dinein"}},
					},
				},
			},
		},
	}
}
