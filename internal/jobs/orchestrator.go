package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/catalog"
	"github.com/abeeha-baig/ocr/internal/classify"
	"github.com/abeeha-baig/ocr/internal/common"
	"github.com/abeeha-baig/ocr/internal/extract"
	"github.com/abeeha-baig/ocr/internal/llm"
	"github.com/abeeha-baig/ocr/internal/ocr"
	"github.com/abeeha-baig/ocr/internal/pipeline"
	"github.com/abeeha-baig/ocr/internal/refdata"
)

// StateCredentialSource answers jurisdiction queries. Nil ids means no
// jurisdiction data; classification then stays company-scoped.
type StateCredentialSource interface {
	StateCredentialIDs(ctx context.Context, venueState string, companyID int) (map[int64]struct{}, error)
}

// Exporter persists the classified roster for one expense.
type Exporter interface {
	ExportExpense(expenseID string, records []classify.ClassifiedRecord) (string, error)
}

// ExpenseResult is the aggregated outcome for one expense id within a job.
type ExpenseResult struct {
	ExpenseID  string
	CompanyID  int
	VenueState string
	Records    []classify.ClassifiedRecord
	OutputPath string
}

// OrchestratorConfig tunes batch execution.
type OrchestratorConfig struct {
	// SubBatchSize bounds how many documents are in flight at once.
	SubBatchSize int
	// OCRWorkers sizes the extraction pool shared by ALL jobs; the upstream
	// quota is account-wide, not per-job.
	OCRWorkers int
	// JobTimeout caps one batch end to end.
	JobTimeout time.Duration
}

// Orchestrator drives submitted batches through splitting, page
// classification, extraction, attendee classification and export.
type Orchestrator struct {
	cfg     OrchestratorConfig
	tracker *Tracker
	gate    *MemoryGate
	docs    *pipeline.DocumentPipeline
	client  *extract.Client
	engine  *classify.Engine
	catalog *catalog.Catalog
	table   *refdata.Table
	states  StateCredentialSource
	export  Exporter
	logger  *slog.Logger

	// ocrSlots is the process-wide extraction pool
	ocrSlots chan struct{}

	mu      sync.Mutex
	results map[uuid.UUID][]ExpenseResult
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	tracker *Tracker,
	gate *MemoryGate,
	docs *pipeline.DocumentPipeline,
	client *extract.Client,
	engine *classify.Engine,
	cat *catalog.Catalog,
	table *refdata.Table,
	states StateCredentialSource,
	exporter Exporter,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = 10
	}
	if cfg.OCRWorkers <= 0 {
		cfg.OCRWorkers = 8
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Hour
	}
	return &Orchestrator{
		cfg:      cfg,
		tracker:  tracker,
		gate:     gate,
		docs:     docs,
		client:   client,
		engine:   engine,
		catalog:  cat,
		table:    table,
		states:   states,
		export:   exporter,
		logger:   logger,
		ocrSlots: make(chan struct{}, cfg.OCRWorkers),
		results:  make(map[uuid.UUID][]ExpenseResult),
	}
}

// Submit admits a new batch and starts it in the background. Rejected
// submissions (memory pressure, empty input) never create a job.
func (o *Orchestrator) Submit(ctx context.Context, pdfPaths []string) (Job, error) {
	if len(pdfPaths) == 0 {
		return Job{}, common.NewAppError("EMPTY_BATCH", "no documents to process", common.ErrInvalidInput)
	}
	if err := o.gate.Admit(); err != nil {
		return Job{}, err
	}

	job := o.tracker.Create(pdfPaths)
	o.logger.Info("job.submitted", "job_id", job.ID, "pdfs", len(pdfPaths))

	go o.run(ctx, job.ID, pdfPaths)
	return job, nil
}

// Results returns the aggregated expense results for a completed job.
func (o *Orchestrator) Results(id uuid.UUID) []ExpenseResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ExpenseResult(nil), o.results[id]...)
}

func (o *Orchestrator) run(ctx context.Context, id uuid.UUID, pdfPaths []string) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()
	start := time.Now()

	if err := o.tracker.Advance(id, constants.JobStatusUploading); err != nil {
		return
	}
	valid := o.validateInputs(id, pdfPaths)
	if len(valid) == 0 {
		o.tracker.Fail(id, "no readable documents in batch")
		return
	}

	if err := o.tracker.Advance(id, constants.JobStatusExtractingPages); err != nil {
		return
	}
	docs, err := o.splitAll(ctx, id, valid)
	if err != nil {
		o.tracker.Fail(id, err.Error())
		return
	}
	if o.expired(ctx, id) {
		return
	}

	signins := 0
	for _, d := range docs {
		signins += len(d.SignInPages)
	}
	o.tracker.Update(id, func(p *Progress) { p.SignInPagesFound = signins })

	if signins == 0 {
		// a batch of receipts with no sign-in sheets is a valid, empty result
		o.logger.Info("job.no_signin_pages", "job_id", id, "pdfs", len(docs))
		if err := o.tracker.Advance(id, constants.JobStatusCompleted); err == nil {
			o.storeResults(id, nil)
		}
		o.logger.Info("job.completed", "job_id", id, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}

	if err := o.tracker.Advance(id, constants.JobStatusOcrProcessing); err != nil {
		return
	}
	results := o.extractAll(ctx, id, docs)
	if o.expired(ctx, id) {
		return
	}

	if err := o.tracker.Advance(id, constants.JobStatusSavingResults); err != nil {
		return
	}
	for i := range results {
		path, err := o.export.ExportExpense(results[i].ExpenseID, results[i].Records)
		if err != nil {
			o.logger.Error("job.export.failed", "job_id", id, "expense_id", results[i].ExpenseID, "err", err)
			continue
		}
		results[i].OutputPath = path
	}
	o.storeResults(id, results)

	if err := o.tracker.Advance(id, constants.JobStatusCompleted); err != nil {
		return
	}
	o.logger.Info("job.completed",
		"job_id", id,
		"pdfs", len(docs),
		"signin_pages", signins,
		"expenses", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// expired fails the job when its context is done. The timeout is a hard
// ceiling: work still outstanding when it fires never reaches Completed.
func (o *Orchestrator) expired(ctx context.Context, id uuid.UUID) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		o.tracker.Fail(id, "job timeout exceeded")
	} else {
		o.tracker.Fail(id, "job canceled")
	}
	o.logger.Error("job.deadline", "job_id", id, "err", err)
	return true
}

// validateInputs drops unreadable paths up front so later stages only see
// documents that exist.
func (o *Orchestrator) validateInputs(id uuid.UUID, pdfPaths []string) []string {
	var valid []string
	for _, p := range pdfPaths {
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			o.logger.Warn("job.input.skipped", "job_id", id, "path", p, "err", err)
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// splitAll renders and classifies documents in bounded sub-batches.
// Individual document failures are logged and skipped; cancellation between
// sub-batches aborts the job.
func (o *Orchestrator) splitAll(ctx context.Context, id uuid.UUID, pdfPaths []string) ([]*pipeline.Document, error) {
	docs := make([]*pipeline.Document, len(pdfPaths))

	for start := 0; start < len(pdfPaths); start += o.cfg.SubBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+o.cfg.SubBatchSize, len(pdfPaths))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				doc, err := o.docs.Process(gctx, pdfPaths[i])
				if err != nil {
					// one bad document must not sink the batch
					o.logger.Error("job.document.failed", "job_id", id, "pdf", pdfPaths[i], "err", err)
					return nil
				}
				docs[i] = doc
				o.tracker.Update(id, func(p *Progress) { p.Current++ })
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		o.gate.Observe()
	}

	out := docs[:0]
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

// pageResult carries one extracted sign-in page, keyed for aggregation.
type pageResult struct {
	docIndex  int
	pageIndex int
	expenseID string
	rawText   string
}

// extractAll OCRs every sign-in page through the shared pool, classifies the
// extracted attendees and aggregates them per expense in source order.
func (o *Orchestrator) extractAll(ctx context.Context, id uuid.UUID, docs []*pipeline.Document) []ExpenseResult {
	var (
		mu    sync.Mutex
		pages []pageResult
	)

	var wg sync.WaitGroup
	for di, doc := range docs {
		expenseID, err := refdata.ExpenseIDFromFilename(doc.PDFPath)
		if err != nil {
			// fallback id already returned; just note the convention miss
			o.logger.Warn("job.expense_id.fallback", "job_id", id, "pdf", doc.PDFPath, "err", err)
		}

		prompt := extract.BuildSignInPrompt(
			o.table.HCPNames(expenseID),
			o.table.CredentialHints(expenseID),
		)

		for pi, page := range doc.SignInPages {
			wg.Add(1)
			go func(di, pi int, page ocr.Page) {
				defer wg.Done()
				select {
				case o.ocrSlots <- struct{}{}:
					defer func() { <-o.ocrSlots }()
				case <-ctx.Done():
					return
				}

				// once a slot is held the call runs to completion; aborting a
				// paid API call mid-flight wastes the spend
				text, err := o.extractPage(context.WithoutCancel(ctx), prompt, page)
				if err != nil {
					o.logger.Error("job.page.failed", "job_id", id, "page", page.Path, "err", err)
					return
				}
				mu.Lock()
				pages = append(pages, pageResult{docIndex: di, pageIndex: pi, expenseID: expenseID, rawText: text})
				mu.Unlock()
				o.tracker.Update(id, func(p *Progress) { p.SignInPagesProcessed++ })
			}(di, pi, page)
		}
	}
	wg.Wait()

	return o.aggregate(ctx, id, pages)
}

func (o *Orchestrator) extractPage(ctx context.Context, prompt string, page ocr.Page) (string, error) {
	img, err := llm.LoadImage(page.Path)
	if err != nil {
		return "", err
	}
	return o.client.Extract(ctx, prompt, img)
}

// aggregate groups page texts by expense id in source order, builds the
// per-expense classification scope once and classifies every page against
// it. Names repeating across pages of one expense collapse to their first
// occurrence.
func (o *Orchestrator) aggregate(ctx context.Context, id uuid.UUID, pages []pageResult) []ExpenseResult {
	sortPages(pages)

	var (
		order   []string
		grouped = map[string][]pageResult{}
	)
	for _, p := range pages {
		if _, seen := grouped[p.expenseID]; !seen {
			order = append(order, p.expenseID)
		}
		grouped[p.expenseID] = append(grouped[p.expenseID], p)
	}

	results := make([]ExpenseResult, 0, len(order))
	for _, expenseID := range order {
		group := grouped[expenseID]

		// the company header is read off the sheet itself; first page wins,
		// with the reference extract as fallback when the trailer is missing
		companyID, ok := classify.ParseCompanyID(group[0].rawText)
		if !ok {
			companyID = o.table.CompanyID(expenseID)
		}
		venueState := o.table.VenueState(expenseID)
		scope := o.scopeFor(ctx, id, companyID, venueState)

		var records []classify.ClassifiedRecord
		for _, p := range group {
			records = append(records, o.engine.Classify(p.rawText, scope)...)
		}
		records = classify.Dedup(records)

		results = append(results, ExpenseResult{
			ExpenseID:  expenseID,
			CompanyID:  companyID,
			VenueState: venueState,
			Records:    records,
		})
		counts := map[constants.Classification]int{}
		for _, r := range records {
			counts[r.Classification]++
		}
		o.logger.Info("job.expense.classified",
			"job_id", id,
			"expense_id", expenseID,
			"company_id", companyID,
			"state", venueState,
			"pages", len(group),
			"attendees", len(records),
			"hcp", counts[constants.ClassificationHCP],
			"field_employee", counts[constants.ClassificationFieldEmployee],
			"non_hcp", counts[constants.ClassificationNonHCP],
		)
	}
	return results
}

// scopeFor builds the classification scope: company first, then the
// jurisdiction filter when state data is available. Jurisdiction failures
// degrade to company scope rather than failing the expense.
func (o *Orchestrator) scopeFor(ctx context.Context, id uuid.UUID, companyID int, venueState string) *catalog.Scoped {
	scope := o.catalog.ScopeTo(companyID)
	if venueState == "" || o.states == nil {
		return scope
	}
	ids, err := o.states.StateCredentialIDs(ctx, venueState, companyID)
	if err != nil {
		o.logger.Warn("job.state_filter.failed", "job_id", id, "state", venueState, "err", err)
		return scope
	}
	return scope.FilterHCPByCredentialIDs(ids)
}

func (o *Orchestrator) storeResults(id uuid.UUID, results []ExpenseResult) {
	o.mu.Lock()
	o.results[id] = results
	o.mu.Unlock()
}

func sortPages(pages []pageResult) {
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].docIndex != pages[j].docIndex {
			return pages[i].docIndex < pages[j].docIndex
		}
		return pages[i].pageIndex < pages[j].pageIndex
	})
}
