package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/ocr"
)

// Document is a fully split and classified source PDF.
type Document struct {
	PDFPath     string
	Pages       []ocr.Page
	SignInPages []ocr.Page
	Resumed     bool
}

// DocumentPipeline turns a source PDF into classified page images on disk.
// Classified pages carry their kind in the filename, so an interrupted run
// picks up where it left off without re-rendering or re-classifying.
type DocumentPipeline struct {
	splitter   *ocr.Splitter
	classifier *Classifier
	logger     *slog.Logger
}

func NewDocumentPipeline(splitter *ocr.Splitter, classifier *Classifier, logger *slog.Logger) *DocumentPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentPipeline{splitter: splitter, classifier: classifier, logger: logger}
}

// Process splits pdfPath into page images, classifies each page and persists
// the verdicts as filename suffixes. Returns the document with its sign-in
// pages in page order.
func (d *DocumentPipeline) Process(ctx context.Context, pdfPath string) (*Document, error) {
	start := time.Now()

	pages, resumed, err := d.splitter.SplitPDF(ctx, pdfPath)
	if err != nil {
		d.logger.Error("document.split.failed", "pdf", pdfPath, "err", err)
		return nil, err
	}

	kinds, err := d.classifier.ClassifyPages(ctx, pages)
	if err != nil {
		d.logger.Error("document.classify.failed", "pdf", pdfPath, "err", err)
		return nil, err
	}

	doc := &Document{PDFPath: pdfPath, Resumed: resumed}
	for i, p := range pages {
		kind := kinds[i]
		if kind == constants.PageUnclassified {
			// ClassifyPages never returns an unclassified verdict
			kind = constants.PageOther
		}
		marked, err := d.splitter.MarkKind(p, kind)
		if err != nil {
			d.logger.Error("document.mark.failed", "page", p.Path, "err", err)
			return nil, err
		}
		doc.Pages = append(doc.Pages, marked)
		if marked.Kind == constants.PageSignIn {
			doc.SignInPages = append(doc.SignInPages, marked)
		}
	}

	d.logger.Info("document.processed",
		"pdf", pdfPath,
		"pages", len(doc.Pages),
		"signin_pages", len(doc.SignInPages),
		"resumed", resumed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}
