package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/extract"
	"github.com/abeeha-baig/ocr/internal/llm"
	"github.com/abeeha-baig/ocr/internal/ocr"
)

// stubRunner fakes the external OCR tools. Tesseract output is keyed by the
// image path it is invoked on.
type stubRunner struct {
	texts map[string]string
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	if text, ok := r.texts[args[0]]; ok {
		return []byte(text), nil, nil
	}
	return nil, []byte("unexpected invocation: " + name), fmt.Errorf("no stub for %v", args)
}

// countingModel returns one canned response (or error) and counts
// invocations.
type countingModel struct {
	response string
	err      error
	calls    int
	images   int
}

func (m *countingModel) GenerateContent(_ context.Context, _ string, images ...llm.Image) (string, error) {
	m.calls++
	m.images += len(images)
	return m.response, m.err
}

func writePages(t *testing.T, dir string, n int) []ocr.Page {
	t.Helper()
	pages := make([]ocr.Page, n)
	for i := range pages {
		path := filepath.Join(dir, fmt.Sprintf("doc_page_%d.png", i+1))
		require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))
		pages[i] = ocr.Page{Path: path, Index: i + 1, Kind: constants.PageUnclassified}
	}
	return pages
}

func newTestClassifier(t *testing.T, texts map[string]string, model llm.VisionModel) *Classifier {
	t.Helper()
	splitter := ocr.NewSplitterWithRunner(ocr.Config{PagesDir: t.TempDir()}, &stubRunner{texts: texts}, nil)
	client := extract.NewClient(model, extract.NewPacer(time.Microsecond), extract.Config{
		SlowCallThreshold: time.Minute,
	}, nil)
	return NewClassifier(ClassifierConfig{Workers: 2, BatchSize: 10}, splitter, client, nil)
}

func TestLooksLikeSignInSheet(t *testing.T) {
	assert.True(t, LooksLikeSignInSheet("Name Signature Credential\nJohn Doe ... MD"))
	// OCR noise within the fuzzy tolerance still matches
	assert.True(t, LooksLikeSignInSheet("Name: | Signature: | Credentlal:"))
	assert.False(t, LooksLikeSignInSheet("Total $42.17 Thank you for dining"))
	// two of three anchors is not enough
	assert.False(t, LooksLikeSignInSheet("Name Signature Amount"))
	assert.False(t, LooksLikeSignInSheet(""))
}

func TestClassifyPages_HeuristicOnly(t *testing.T) {
	dir := t.TempDir()
	pages := writePages(t, dir, 2)
	texts := map[string]string{
		pages[0].Path: "Name Signature Credential",
		pages[1].Path: "Total $42.17 Thank you",
	}
	model := &countingModel{}
	c := newTestClassifier(t, texts, model)

	kinds, err := c.ClassifyPages(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, []constants.PageKind{constants.PageSignIn, constants.PageOther}, kinds)
	// the heuristic found a sign-in page, so the model is never consulted
	assert.Equal(t, 0, model.calls)
}

func TestClassifyPages_FallbackSingleBatchCall(t *testing.T) {
	dir := t.TempDir()
	pages := writePages(t, dir, 3)
	texts := map[string]string{}
	for _, p := range pages {
		texts[p.Path] = "Itemized bill, nothing tabular"
	}

	verdict, _ := json.Marshal(llm.PageClassification{Pages: []llm.PageVerdict{
		{Position: 1, Kind: "dinein"},
		{Position: 2, Kind: "signin"},
		{Position: 3, Kind: "dinein"},
	}})
	model := &countingModel{response: string(verdict)}
	c := newTestClassifier(t, texts, model)

	kinds, err := c.ClassifyPages(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, []constants.PageKind{constants.PageOther, constants.PageSignIn, constants.PageOther}, kinds)
	// all pages fit one batch
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 3, model.images)
}

func TestClassifyPages_UnparsableFallbackDefaultsToOther(t *testing.T) {
	dir := t.TempDir()
	pages := writePages(t, dir, 2)
	texts := map[string]string{}
	for _, p := range pages {
		texts[p.Path] = "receipt text"
	}
	model := &countingModel{response: "I really could not decide"}
	c := newTestClassifier(t, texts, model)

	kinds, err := c.ClassifyPages(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, []constants.PageKind{constants.PageOther, constants.PageOther}, kinds)
}

func TestClassifyPages_FallbackCallFailureDefaultsToOther(t *testing.T) {
	dir := t.TempDir()
	pages := writePages(t, dir, 2)
	texts := map[string]string{}
	for _, p := range pages {
		texts[p.Path] = "receipt text"
	}
	model := &countingModel{err: fmt.Errorf("upstream unavailable")}
	c := newTestClassifier(t, texts, model)

	kinds, err := c.ClassifyPages(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, []constants.PageKind{constants.PageOther, constants.PageOther}, kinds)
	assert.Equal(t, 1, model.calls)
}

func TestClassifyPages_ResumedPagesKeepKind(t *testing.T) {
	dir := t.TempDir()
	pages := writePages(t, dir, 2)
	pages[0].Kind = constants.PageSignIn
	pages[1].Kind = constants.PageOther

	model := &countingModel{}
	c := newTestClassifier(t, nil, model)

	kinds, err := c.ClassifyPages(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, []constants.PageKind{constants.PageSignIn, constants.PageOther}, kinds)
	assert.Equal(t, 0, model.calls)
}

func TestClassifyPages_OCRFailureIsOther(t *testing.T) {
	dir := t.TempDir()
	pages := writePages(t, dir, 2)
	// only the first page has stubbed OCR output and it is a sign-in sheet
	texts := map[string]string{pages[0].Path: "Name Signature Credential"}
	model := &countingModel{}
	c := newTestClassifier(t, texts, model)

	kinds, err := c.ClassifyPages(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, []constants.PageKind{constants.PageSignIn, constants.PageOther}, kinds)
	assert.Equal(t, 0, model.calls)
}
