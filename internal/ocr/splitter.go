package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/abeeha-baig/ocr/constants"
)

// Config holds local OCR tool settings.
type Config struct {
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI, default 300
	PagesDir      string // where rendered page images are persisted
}

// Page is one rendered page image on disk.
type Page struct {
	Path  string
	Index int // 1-based position within the source document
	Kind  constants.PageKind
}

// Splitter renders PDFs into per-page images and runs the local text pass
// used by the sign-in heuristic.
type Splitter struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewSplitter(cfg Config, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PagesDir == "" {
		cfg.PagesDir = "./pages"
	}
	return &Splitter{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewSplitterWithRunner is for tests that stub external commands.
func NewSplitterWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Splitter {
	s := NewSplitter(cfg, logger)
	s.runner = runner
	return s
}

// SplitPDF renders each page of pdfPath to a PNG under PagesDir, named
// <stem>_page_<n>.png. If kind-suffixed pages from an earlier run already
// exist for this document, they are reused as-is and resumed reports true;
// the PDF is not re-split.
func (s *Splitter) SplitPDF(ctx context.Context, pdfPath string) (pages []Page, resumed bool, err error) {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))

	if done := s.classifiedPages(stem); len(done) > 0 {
		s.logger.Info("split.resume", "pdf", filepath.Base(pdfPath), "pages", len(done))
		return done, true, nil
	}

	if err := os.MkdirAll(s.cfg.PagesDir, 0o755); err != nil {
		return nil, false, err
	}

	prefix := filepath.Join(s.cfg.PagesDir, stem+"_page")
	// pdftoppm -r <dpi> -png <in.pdf> <pagesdir>/<stem>_page
	_, errb, err := s.runner.Run(ctx, s.cfg.Pdftoppm, "-r", strconv.Itoa(s.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		return nil, false, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, false, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(pdfPath))
	}
	byIndex := make(map[int]string, len(matches))
	indexes := make([]int, 0, len(matches))
	for _, m := range matches {
		numStr := strings.TrimSuffix(strings.TrimPrefix(m, prefix+"-"), ".png")
		n, convErr := strconv.Atoi(numStr)
		if convErr != nil {
			continue
		}
		byIndex[n] = m
		indexes = append(indexes, n)
	}
	sort.Ints(indexes)

	for _, n := range indexes {
		// normalize pdftoppm's prefix-N.png to <stem>_page_<n>.png
		dst := fmt.Sprintf("%s_%d.png", prefix, n)
		if err := os.Rename(byIndex[n], dst); err != nil {
			return nil, false, fmt.Errorf("rename page %d: %w", n, err)
		}
		pages = append(pages, Page{Path: dst, Index: n, Kind: constants.PageUnclassified})
	}

	s.logger.Info("split.ok", "pdf", filepath.Base(pdfPath), "pages", len(pages), "dpi", s.cfg.DPI)
	return pages, false, nil
}

// classifiedPages finds pages persisted with a kind suffix by a previous run.
func (s *Splitter) classifiedPages(stem string) []Page {
	var pages []Page
	for _, kind := range []constants.PageKind{constants.PageSignIn, constants.PageOther} {
		glob := filepath.Join(s.cfg.PagesDir, stem+"_page_*_"+string(kind)+".png")
		matches, _ := filepath.Glob(glob)
		for _, m := range matches {
			base := strings.TrimSuffix(filepath.Base(m), "_"+string(kind)+".png")
			numStr := base[strings.LastIndex(base, "_")+1:]
			n, err := strconv.Atoi(numStr)
			if err != nil {
				continue
			}
			pages = append(pages, Page{Path: m, Index: n, Kind: kind})
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	return pages
}

// MarkKind renames a page image so its filename encodes the final kind.
// Already-suffixed pages (resumed runs) are left alone.
func (s *Splitter) MarkKind(page Page, kind constants.PageKind) (Page, error) {
	if page.Kind == kind {
		return page, nil
	}
	dst := strings.TrimSuffix(page.Path, ".png") + "_" + string(kind) + ".png"
	if err := os.Rename(page.Path, dst); err != nil {
		return page, fmt.Errorf("mark page %d %s: %w", page.Index, kind, err)
	}
	page.Path = dst
	page.Kind = kind
	return page, nil
}

// QuickText runs a fast local OCR pass over one page image. It is a cheap
// signal for the sign-in heuristic, not an accuracy-bearing extraction.
func (s *Splitter) QuickText(ctx context.Context, imagePath string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := s.runner.Run(ctx, s.cfg.Tesseract, imagePath, "stdout", "-l", s.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
