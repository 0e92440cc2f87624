package refdata

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abeeha-baig/ocr/internal/common"
)

// row is one attendee line from the expense report export. Every expense id
// appears once per registered attendee; expense-level fields repeat.
type row struct {
	expenseID  string
	firstName  string
	lastName   string
	credential string
	venueState string
	companyID  string
}

func (r row) fullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.firstName) + " " + strings.TrimSpace(r.lastName))
}

// Table is an in-memory view of the pipe-delimited expense report export,
// indexed by expense id. Read-only after load.
type Table struct {
	byExpense map[string][]row
	logger    *slog.Logger
}

// Load parses the pipe-delimited export at path. Columns are resolved by
// header name, so extra columns and reordering are tolerated. Only
// ExpenseV3_ID, AttendeeV3_FirstName and AttendeeV3_LastName are required;
// credential, state and company columns are optional enrichment.
func Load(path string, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &common.CatalogError{Source: path, Err: err}
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.Comma = '|'
	rd.FieldsPerRecord = -1
	rd.LazyQuotes = true

	records, err := rd.ReadAll()
	if err != nil {
		return nil, &common.CatalogError{Source: path, Err: err}
	}
	if len(records) < 1 {
		return nil, &common.CatalogError{Source: path, Err: os.ErrInvalid}
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.TrimSpace(h)] = i
	}
	cell := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	t := &Table{byExpense: make(map[string][]row), logger: logger}
	for _, rec := range records[1:] {
		r := row{
			expenseID:  cell(rec, "ExpenseV3_ID"),
			firstName:  cell(rec, "AttendeeV3_FirstName"),
			lastName:   cell(rec, "AttendeeV3_LastName"),
			credential: cell(rec, "AttendeeV3_Custom13"),
			venueState: cell(rec, "ExpenseV3_Custom21"),
			companyID:  cell(rec, "User_companyId"),
		}
		if r.expenseID == "" {
			continue
		}
		t.byExpense[r.expenseID] = append(t.byExpense[r.expenseID], r)
	}

	logger.Info("refdata.loaded", "source", path, "expenses", len(t.byExpense))
	return t, nil
}

// ExpenseIDFromFilename extracts the expense id from a scanned document
// filename. The naming convention is
// [ID]_[Event Type]_[Expense ID]_[Project]_[Timestamp], so the id is the
// third underscore-separated part. Files outside the convention fall back to
// their bare stem so processing can still proceed, keyed by filename.
func ExpenseIDFromFilename(filename string) (string, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return stem, &common.ParseError{Input: base, Reason: "expected at least 3 underscore-separated parts"}
	}
	return parts[2], nil
}

// HCPNames returns the registered attendee full names for an expense, in
// export order. Used as reading hints for extraction, not as ground truth.
func (t *Table) HCPNames(expenseID string) []string {
	rows := t.byExpense[expenseID]
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if name := r.fullName(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// CredentialHints maps attendee full names to the credential recorded in the
// export, for attendees that have one.
func (t *Table) CredentialHints(expenseID string) map[string]string {
	hints := map[string]string{}
	for _, r := range t.byExpense[expenseID] {
		name := r.fullName()
		if name == "" || r.credential == "" {
			continue
		}
		hints[name] = r.credential
	}
	return hints
}

// VenueState returns the event's venue state (e.g. "Pennsylvania") or "" when
// the export does not record one for the expense.
func (t *Table) VenueState(expenseID string) string {
	for _, r := range t.byExpense[expenseID] {
		if r.venueState != "" {
			return r.venueState
		}
	}
	t.logger.Warn("refdata.state.missing", "expense_id", expenseID)
	return ""
}

// CompanyID returns the exporting user's numeric company id, defaulting to 1.
// The extraction-time header detection is authoritative; this is a fallback.
func (t *Table) CompanyID(expenseID string) int {
	for _, r := range t.byExpense[expenseID] {
		if r.companyID == "" {
			continue
		}
		id, err := strconv.Atoi(r.companyID)
		if err != nil || id <= 0 {
			t.logger.Warn("refdata.company_id.invalid", "expense_id", expenseID, "value", r.companyID)
			return 1
		}
		return id
	}
	return 1
}

// Expenses returns the distinct expense ids present in the export.
func (t *Table) Expenses() []string {
	ids := make([]string, 0, len(t.byExpense))
	for id := range t.byExpense {
		ids = append(ids, id)
	}
	return ids
}
