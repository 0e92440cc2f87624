package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSignInPrompt(t *testing.T) {
	prompt := BuildSignInPrompt(
		[]string{"John Doe", "Jane Smith"},
		map[string]string{"John Doe": "MD"},
	)

	assert.Contains(t, prompt, "- John Doe (expected credential: MD)")
	assert.Contains(t, prompt, "- Jane Smith\n")
	assert.Contains(t, prompt, "COMPANY_ID: <number>")
	assert.Contains(t, prompt, "FIELD EMPLOYEE:")
	// attendee order follows the expense report export
	assert.Less(t, strings.Index(prompt, "John Doe"), strings.Index(prompt, "Jane Smith"))
}

func TestBuildSignInPrompt_NoAttendees(t *testing.T) {
	prompt := BuildSignInPrompt(nil, nil)
	assert.Contains(t, prompt, "No expected attendee list is available")
	assert.NotContains(t, prompt, "Expected attendees:")
}

func TestBuildPageClassificationPrompt(t *testing.T) {
	prompt := BuildPageClassificationPrompt(4)
	assert.Contains(t, prompt, "4 scanned document page images")
	assert.Contains(t, prompt, `"signin"`)
	assert.Contains(t, prompt, `"dinein"`)
}
