package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/abeeha-baig/ocr/internal/classify"
)

// Service writes classified attendee rosters as XLSX workbooks, one file per
// expense.
type Service struct {
	outputDir string
	logger    *slog.Logger
}

func NewService(outputDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{outputDir: outputDir, logger: logger}
}

// ExportExpense writes OCR_Results_Classified_<expense>.xlsx into the output
// directory and returns its path. An expense with no surviving records still
// produces a workbook with only the header row.
func (s *Service) ExportExpense(expenseID string, records []classify.ClassifiedRecord) (string, error) {
	start := time.Now()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("output dir: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Classified"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return "", err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// drop the default sheet so the workbook opens on the roster
	if di, _ := f.GetSheetIndex("Sheet1"); di != -1 && sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Name",
		"RawCredential",
		"CanonicalCredential",
		"Classification",
		"MatchScore",
		"MatchMethod",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range records {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.Name)
		write(2, r.RawCredential)
		write(3, r.CanonicalCredential)
		write(4, string(r.Classification))
		write(5, r.MatchScore)
		write(6, r.MatchMethod)
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 28) // name
	_ = f.SetColWidth(sheet, "B", "C", 22) // credentials
	_ = f.SetColWidth(sheet, "D", "D", 16) // classification
	_ = f.SetColWidth(sheet, "E", "F", 18) // score, method

	path := filepath.Join(s.outputDir, "OCR_Results_Classified_"+sanitizeFilename(expenseID)+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"expense_id", expenseID,
		"rows", len(records),
		"path", path,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}

// sanitizeFilename keeps expense ids with path-hostile characters (Concur
// ids carry '$') safe as filenames.
func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
