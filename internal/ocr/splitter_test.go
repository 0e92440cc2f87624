package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeeha-baig/ocr/constants"
)

// renderStub fakes pdftoppm by creating page files, and tesseract by echoing
// canned text.
type renderStub struct {
	pages int
	text  string
	fail  bool
	runs  int
}

func (r *renderStub) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.runs++
	if r.fail {
		return nil, []byte("tool exploded"), fmt.Errorf("exit status 1")
	}
	if strings.Contains(name, "pdftoppm") {
		prefix := args[len(args)-1]
		for i := 1; i <= r.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("img"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	return []byte(r.text), nil, nil
}

func TestSplitPDF(t *testing.T) {
	dir := t.TempDir()
	stub := &renderStub{pages: 3}
	s := NewSplitterWithRunner(Config{PagesDir: dir}, stub, nil)

	pages, resumed, err := s.SplitPDF(context.Background(), "/in/meeting.pdf")
	require.NoError(t, err)
	assert.False(t, resumed)
	require.Len(t, pages, 3)

	for i, p := range pages {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, constants.PageUnclassified, p.Kind)
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("meeting_page_%d.png", i+1)), p.Path)
		assert.FileExists(t, p.Path)
	}
}

func TestSplitPDF_ToolFailure(t *testing.T) {
	s := NewSplitterWithRunner(Config{PagesDir: t.TempDir()}, &renderStub{fail: true}, nil)
	_, _, err := s.SplitPDF(context.Background(), "/in/meeting.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftoppm")
}

func TestSplitPDF_NoPagesProduced(t *testing.T) {
	s := NewSplitterWithRunner(Config{PagesDir: t.TempDir()}, &renderStub{pages: 0}, nil)
	_, _, err := s.SplitPDF(context.Background(), "/in/meeting.pdf")
	assert.Error(t, err)
}

func TestSplitPDF_ResumesFromClassifiedPages(t *testing.T) {
	dir := t.TempDir()
	// a previous run classified and renamed two pages
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meeting_page_1_signin.png"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meeting_page_2_dinein.png"), []byte("img"), 0o644))

	stub := &renderStub{pages: 3}
	s := NewSplitterWithRunner(Config{PagesDir: dir}, stub, nil)

	pages, resumed, err := s.SplitPDF(context.Background(), "/in/meeting.pdf")
	require.NoError(t, err)
	assert.True(t, resumed)
	// the renderer is never invoked on resume
	assert.Equal(t, 0, stub.runs)

	require.Len(t, pages, 2)
	assert.Equal(t, constants.PageSignIn, pages[0].Kind)
	assert.Equal(t, 1, pages[0].Index)
	assert.Equal(t, constants.PageOther, pages[1].Kind)
}

func TestSplitPDF_PageOrderIsNumeric(t *testing.T) {
	dir := t.TempDir()
	stub := &renderStub{pages: 11}
	s := NewSplitterWithRunner(Config{PagesDir: dir}, stub, nil)

	pages, _, err := s.SplitPDF(context.Background(), "/in/long.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 11)
	// page 10 must follow page 9, not page 1
	assert.Equal(t, 9, pages[8].Index)
	assert.Equal(t, 10, pages[9].Index)
	assert.Equal(t, 11, pages[10].Index)
}

func TestMarkKind(t *testing.T) {
	dir := t.TempDir()
	s := NewSplitterWithRunner(Config{PagesDir: dir}, &renderStub{}, nil)

	src := filepath.Join(dir, "meeting_page_1.png")
	require.NoError(t, os.WriteFile(src, []byte("img"), 0o644))

	page := Page{Path: src, Index: 1, Kind: constants.PageUnclassified}
	marked, err := s.MarkKind(page, constants.PageSignIn)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meeting_page_1_signin.png"), marked.Path)
	assert.Equal(t, constants.PageSignIn, marked.Kind)
	assert.FileExists(t, marked.Path)
	assert.NoFileExists(t, src)
}

func TestMarkKind_AlreadyMarkedIsNoop(t *testing.T) {
	s := NewSplitterWithRunner(Config{PagesDir: t.TempDir()}, &renderStub{}, nil)
	page := Page{Path: "/pages/m_page_1_signin.png", Index: 1, Kind: constants.PageSignIn}
	marked, err := s.MarkKind(page, constants.PageSignIn)
	require.NoError(t, err)
	assert.Equal(t, page, marked)
}

func TestQuickText(t *testing.T) {
	s := NewSplitterWithRunner(Config{PagesDir: t.TempDir()}, &renderStub{text: "Name Signature Credential"}, nil)
	text, err := s.QuickText(context.Background(), "/pages/p.png")
	require.NoError(t, err)
	assert.Equal(t, "Name Signature Credential", text)
}
