package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/catalog"
	"github.com/abeeha-baig/ocr/internal/classify"
	"github.com/abeeha-baig/ocr/internal/common"
	"github.com/abeeha-baig/ocr/internal/export"
	"github.com/abeeha-baig/ocr/internal/extract"
	"github.com/abeeha-baig/ocr/internal/jobs"
	"github.com/abeeha-baig/ocr/internal/llm/gemini"
	"github.com/abeeha-baig/ocr/internal/ocr"
	"github.com/abeeha-baig/ocr/internal/pipeline"
	"github.com/abeeha-baig/ocr/internal/refdata"
	"github.com/abeeha-baig/ocr/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir         = flag.String("dir", "", "directory of scanned PDFs to process (required)")
		concurPath  = flag.String("concur", "", "pipe-delimited expense report export (required)")
		mappingPath = flag.String("mapping", "", "credential mapping workbook (optional when the database holds the tables)")
		out         = flag.String("out", "", "output directory (defaults to ./output)")
		inmem       = flag.Bool("inmem", false, "use an in-memory SQLite reference store")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *concurPath == "" {
		printError("Error: --concur is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()
	if *out != "" {
		cfg.Pipeline.OutputDir = *out
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Reference store: Postgres by default, SQLite for standalone runs
	var store *repository.Store
	var err error
	if *inmem {
		store, err = repository.OpenInMemory(logger)
	} else {
		store, err = repository.Open(ctx, cfg.Database, logger)
	}
	if err != nil {
		logger.Error("failed to initialize reference store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
		logger.Error("reference store unavailable", "error", err)
		os.Exit(1)
	}

	// Credential catalog: workbook when given, otherwise the store's tables
	var cat *catalog.Catalog
	if *mappingPath != "" {
		cat, err = catalog.LoadCached(*mappingPath, logger)
	} else {
		cat, err = store.CatalogEntries(ctx, logger)
	}
	if err != nil {
		logger.Error("failed to load credential catalog", "error", err)
		os.Exit(1)
	}

	table, err := refdata.Load(*concurPath, logger)
	if err != nil {
		logger.Error("failed to load expense report export", "error", err)
		os.Exit(1)
	}

	pdfs, err := collectPDFs(*dir)
	if err != nil {
		logger.Error("failed to scan input directory", "error", err)
		os.Exit(1)
	}
	if len(pdfs) == 0 {
		logger.Error("no PDF documents found", "dir", *dir)
		os.Exit(1)
	}
	logger.Info("starting batch", "dir", *dir, "pdfs", len(pdfs))

	// Shared pacer: the per-minute quota is account-wide, so the extraction
	// and classification models pace through the same limiter.
	pacer := extract.NewPacer(cfg.LLM.MinCallInterval)
	clientCfg := extract.Config{
		RateLimitCooldown: cfg.LLM.RateLimitCooldown,
		SlowCallThreshold: cfg.LLM.Timeout / 2,
	}
	extractClient := extract.NewClient(gemini.NewClient(gemini.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger), pacer, clientCfg, logger)
	classifyClient := extract.NewClient(gemini.NewClient(gemini.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.ClassifyModel,
		Timeout: cfg.LLM.Timeout,
	}, logger), pacer, clientCfg, logger)

	splitter := ocr.NewSplitter(ocr.Config{
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		PagesDir:      cfg.Pipeline.PagesDir,
	}, logger)

	classifier := pipeline.NewClassifier(pipeline.ClassifierConfig{
		Workers:   cfg.Pipeline.SplitWorkers,
		BatchSize: cfg.Pipeline.ClassifyBatchSize,
	}, splitter, classifyClient, logger)
	docs := pipeline.NewDocumentPipeline(splitter, classifier, logger)

	engine := classify.NewEngine(classify.Config{}, logger)
	tracker := jobs.NewTracker()
	gate := jobs.NewMemoryGate(cfg.Pipeline.MemoryHighWater, logger)
	exporter := export.NewService(cfg.Pipeline.OutputDir, logger)

	orch := jobs.NewOrchestrator(jobs.OrchestratorConfig{
		SubBatchSize: cfg.Pipeline.PDFBatchSize,
		OCRWorkers:   cfg.Pipeline.OCRWorkers,
		JobTimeout:   cfg.Pipeline.JobTimeout,
	}, tracker, gate, docs, extractClient, engine, cat, table, store, exporter, logger)

	job, err := orch.Submit(ctx, pdfs)
	if err != nil {
		logger.Error("submission rejected", "error", err)
		os.Exit(1)
	}

	final := waitForJob(tracker, job.ID)
	results := orch.Results(job.ID)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Status: %s\n", final.Status)
	fmt.Printf("- PDFs processed: %d/%d\n", final.Progress.Current, final.Progress.TotalPDFs)
	fmt.Printf("- Sign-in pages: %d found, %d processed\n",
		final.Progress.SignInPagesFound, final.Progress.SignInPagesProcessed)
	for _, r := range results {
		fmt.Printf("- Expense %s: %d attendee(s) -> %s\n", r.ExpenseID, len(r.Records), r.OutputPath)
	}
	if final.Status == constants.JobStatusFailed {
		printError("Error: %s\n", final.Error)
		os.Exit(1)
	}
}

func collectPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pdfs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if constants.MapExtToFormat(filepath.Ext(e.Name())) == constants.PDF {
			pdfs = append(pdfs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

func waitForJob(tracker *jobs.Tracker, id uuid.UUID) jobs.Job {
	for {
		j, err := tracker.Get(id)
		if err == nil && j.Status.Terminal() {
			return j
		}
		time.Sleep(500 * time.Millisecond)
	}
}
