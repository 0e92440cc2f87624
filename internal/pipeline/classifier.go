package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/classify"
	"github.com/abeeha-baig/ocr/internal/extract"
	"github.com/abeeha-baig/ocr/internal/llm"
	"github.com/abeeha-baig/ocr/internal/ocr"
)

// anchor words a sign-in sheet's column headers must all carry
var signInAnchors = []string{"name", "signature", "credential"}

const anchorThreshold = 85

// ClassifierConfig tunes page classification.
type ClassifierConfig struct {
	// Workers bounds the concurrent cheap-OCR passes per document.
	Workers int
	// BatchSize chunks the model fallback when a document has many pages.
	BatchSize int
}

// Classifier labels rendered pages as sign-in sheets or other material.
// A cheap local OCR heuristic runs first; the vision model is consulted
// only when the heuristic finds no sign-in page in the whole document.
type Classifier struct {
	cfg      ClassifierConfig
	splitter *ocr.Splitter
	client   *extract.Client
	logger   *slog.Logger
}

func NewClassifier(cfg ClassifierConfig, splitter *ocr.Splitter, client *extract.Client, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Classifier{cfg: cfg, splitter: splitter, client: client, logger: logger}
}

// ClassifyPages decides a kind for every page. Already-classified pages
// (picked up from a resumed run) keep their kind; the returned slice is
// aligned with pages and never contains an unclassified verdict.
func (c *Classifier) ClassifyPages(ctx context.Context, pages []ocr.Page) ([]constants.PageKind, error) {
	pending := 0
	for _, p := range pages {
		if p.Kind == constants.PageUnclassified {
			pending++
		}
	}
	if pending == 0 {
		kinds := make([]constants.PageKind, len(pages))
		for i, p := range pages {
			kinds[i] = p.Kind
		}
		return kinds, nil
	}

	kinds, signins, err := c.heuristicPass(ctx, pages)
	if err != nil {
		return nil, err
	}

	// the model only arbitrates when the cheap pass came up entirely empty,
	// and then it re-judges every page of the document
	if signins == 0 && !alreadyHasSignIn(pages) {
		c.logger.Info("classify.pages.fallback", "pages", len(pages))
		kinds, err = c.modelPass(ctx, pages)
		if err != nil {
			return nil, err
		}
	}

	for i, p := range pages {
		if p.Kind != constants.PageUnclassified {
			kinds[i] = p.Kind
		}
	}
	return kinds, nil
}

func alreadyHasSignIn(pages []ocr.Page) bool {
	for _, p := range pages {
		if p.Kind == constants.PageSignIn {
			return true
		}
	}
	return false
}

// heuristicPass runs local OCR on each unclassified page and checks for the
// sign-in column anchors. Returns the per-page verdicts and a count of
// sign-in hits.
func (c *Classifier) heuristicPass(ctx context.Context, pages []ocr.Page) ([]constants.PageKind, int, error) {
	kinds := make([]constants.PageKind, len(pages))

	var mu sync.Mutex
	signins := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, p := range pages {
		if p.Kind != constants.PageUnclassified {
			continue
		}
		i, p := i, p
		g.Go(func() error {
			text, err := c.splitter.QuickText(gctx, p.Path)
			if err != nil {
				// a page tesseract cannot read is not a sign-in sheet
				c.logger.Warn("classify.heuristic.ocr_failed", "page", p.Path, "err", err)
				kinds[i] = constants.PageOther
				return nil
			}
			if LooksLikeSignInSheet(text) {
				kinds[i] = constants.PageSignIn
				mu.Lock()
				signins++
				mu.Unlock()
			} else {
				kinds[i] = constants.PageOther
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return kinds, signins, nil
}

// LooksLikeSignInSheet reports whether OCR text carries all sign-in column
// anchors. Matching is per word and fuzzy, since tesseract routinely mangles
// a character or two of printed headers.
func LooksLikeSignInSheet(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	for _, anchor := range signInAnchors {
		found := false
		for _, w := range words {
			w = strings.Trim(w, ".,:;()[]|")
			if classify.Ratio(anchor, w) >= anchorThreshold {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// modelPass sends page images to the vision model in batches and validates
// the response against a per-batch schema. Pages the model fails to judge,
// for any reason, default to other material; the fallback stage never fails
// a document.
func (c *Classifier) modelPass(ctx context.Context, pages []ocr.Page) ([]constants.PageKind, error) {
	kinds := make([]constants.PageKind, len(pages))
	for i := range kinds {
		kinds[i] = constants.PageOther
	}

	for start := 0; start < len(pages); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+c.cfg.BatchSize, len(pages))
		batch := pages[start:end]

		images := make([]llm.Image, 0, len(batch))
		loadFailed := false
		for _, p := range batch {
			img, err := llm.LoadImage(p.Path)
			if err != nil {
				c.logger.Warn("classify.model.image_unreadable", "page", p.Path, "err", err)
				loadFailed = true
				break
			}
			images = append(images, img)
		}
		if loadFailed {
			continue
		}

		raw, err := c.client.ExtractBatch(ctx, extract.BuildPageClassificationPrompt(len(batch)), images)
		if err != nil {
			c.logger.Warn("classify.model.call_failed", "batch_start", start, "err", err)
			continue
		}

		verdicts, err := c.parseBatch(raw, len(batch))
		if err != nil {
			c.logger.Warn("classify.model.unparsable", "batch_start", start, "err", err)
			continue
		}
		for _, v := range verdicts.Pages {
			if v.Position < 1 || v.Position > len(batch) {
				continue
			}
			if v.Kind == string(constants.PageSignIn) {
				kinds[start+v.Position-1] = constants.PageSignIn
			}
		}
	}
	return kinds, nil
}

func (c *Classifier) parseBatch(raw string, pageCount int) (*llm.PageClassification, error) {
	s := llm.StripFences(raw)
	schema := llm.BuildPageClassificationSchema(pageCount)
	if err := llm.ValidateJSONAgainstSchema(schema, []byte(s)); err != nil {
		// some models pad the JSON with prose; one lenient retry
		parsed, perr := llm.ParsePageClassification(raw)
		if perr != nil {
			return nil, err
		}
		b, _ := json.Marshal(parsed)
		if verr := llm.ValidateJSONAgainstSchema(schema, b); verr != nil {
			return nil, verr
		}
		return parsed, nil
	}
	return llm.ParsePageClassification(s)
}
