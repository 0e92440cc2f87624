package llm

import "context"

// Image is one in-memory page image payload sent to the vision model.
type Image struct {
	Data []byte
	MIME string
}

// VisionModel turns a free-text instruction plus images into free text.
// Implementations own transport only; pacing and retries live in the
// extraction client wrapping them.
type VisionModel interface {
	GenerateContent(ctx context.Context, prompt string, images ...Image) (string, error)
}

// PageVerdict is one entry of a batch page-classification response.
type PageVerdict struct {
	Position int    `json:"position"`
	Kind     string `json:"kind"`
}

// PageClassification is the position-ordered batch response shape.
type PageClassification struct {
	Pages []PageVerdict `json:"pages"`
}
