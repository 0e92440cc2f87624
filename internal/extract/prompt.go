package extract

import (
	"fmt"
	"strings"
)

// signInPromptTemplate is the extraction instruction set for sign-in sheet
// pages. %s receives the expected-attendee block.
const signInPromptTemplate = `You are an expert OCR model. Extract names and credentials from the signin sheet image.

CRITICAL: Read each row as a COMPLETE UNIT - read the name and its corresponding credential in the SAME LINE.
ALSO, some writing would be striked out, and something would be written ahead or beside it. don't read the striked out text, read what is written beside or ahead of it.

Instructions:
- Go row by row from top to bottom
- For EACH row, read the name and the credential carefully from their respective columns.
- Use the expected attendees below as reference for expected names.
- When a name matches an expected attendee, use the exact spelling from the reference, but make it upper case. CRITICAL: only the names that are matched should be upper cased.
- Extract credentials EXACTLY as they appear. be very careful when reading them.
- Pay close attention to periods, spaces, and capitalization in credentials
- Sometimes there is faded ink and 'A' looks like 'H', so use your best judgement.
- Check if there is a name written after "Field Employee:" in the header. Report it on its own line as: FIELD EMPLOYEE: <name>. If that name appears in the body as well, prioritize the body occurrence.
- Read the header of the page. If any of the following words appear, note the company_id:
  * GSK -> company_id: 1
  * AstraZeneca -> company_id: 2
  * Lilly -> company_id: 3

%s
Provide the extracted data in markdown format (one line per person):
- John Doe, MD
- Jane Smith, NP
- Robert Johnson, PA

At the end, on a new line, provide: COMPANY_ID: <number>
If no company is found, use: COMPANY_ID: 1 (default)
`

// BuildSignInPrompt renders the extraction prompt for one sign-in page.
// hcpNames are the attendee names registered on the expense report;
// credentialHints map a subset of those names to the credential the report
// expects, giving the model a reading guide for ambiguous handwriting.
func BuildSignInPrompt(hcpNames []string, credentialHints map[string]string) string {
	var b strings.Builder
	if len(hcpNames) > 0 {
		b.WriteString("Expected attendees:\n")
		for _, name := range hcpNames {
			if hint, ok := credentialHints[name]; ok && hint != "" {
				fmt.Fprintf(&b, "- %s (expected credential: %s)\n", name, hint)
			} else {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
	} else {
		b.WriteString("No expected attendee list is available for this sheet.\n")
	}
	return fmt.Sprintf(signInPromptTemplate, b.String())
}

// BuildPageClassificationPrompt asks the model to label a batch of page
// images. Positions are 1-based and follow the order images are attached.
func BuildPageClassificationPrompt(pageCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are given %d scanned document page images, in order.\n", pageCount)
	b.WriteString(`For each page decide whether it is a sign-in sheet or not.

A sign-in sheet has a tabular layout with columns for attendee name, signature and credential (MD, RN, NP and similar). Anything else (restaurant receipts, itemized bills, catering orders) is not a sign-in sheet.

Respond with JSON only, no prose, matching this shape:
{"pages": [{"position": 1, "kind": "signin"}, {"position": 2, "kind": "dinein"}]}

"kind" must be "signin" for sign-in sheets and "dinein" for everything else. Include every page exactly once.
`)
	return b.String()
}
