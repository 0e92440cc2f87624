package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/common"
)

// Entry is one immutable credential-catalog row. Matchable strings are
// normalized (upper, trimmed) once at load time, not per lookup.
type Entry struct {
	PossibleName   string
	Credential     string
	Classification constants.Classification
	CompanyID      int
	CredentialID   int64
	Precedence     int

	possibleUpper   string
	credentialUpper string
}

// PossibleUpper returns the normalized possible-name used for matching.
func (e *Entry) PossibleUpper() string { return e.possibleUpper }

// Catalog is the full, unscoped credential table. Read-only after load and
// safe to share across workers.
type Catalog struct {
	entries []Entry
	logger  *slog.Logger
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Catalog{}
)

// LoadCached loads the catalog for path once per process; later calls for the
// same path reuse the parsed table so per-company scoping stays cheap.
func LoadCached(path string, logger *slog.Logger) (*Catalog, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if c, ok := cache[path]; ok {
		return c, nil
	}
	c, err := Load(path, logger)
	if err != nil {
		return nil, err
	}
	cache[path] = c
	return c, nil
}

// Load parses the credential mapping workbook. Expected columns:
// PossibleNames, Credential, Classification, company_id, CredentialID,
// precedence_in_classification (header row, any order).
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &common.CatalogError{Source: path, Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &common.CatalogError{Source: path, Err: err}
	}
	if len(rows) < 1 {
		return nil, &common.CatalogError{Source: path, Err: fmt.Errorf("empty workbook")}
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"possiblenames", "credential", "classification", "company_id"} {
		if _, ok := col[required]; !ok {
			return nil, &common.CatalogError{Source: path, Err: fmt.Errorf("missing column %q", required)}
		}
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []Entry
	for _, row := range rows[1:] {
		possible := cell(row, "possiblenames")
		credential := cell(row, "credential")
		if possible == "" && credential == "" {
			continue
		}
		companyID, _ := strconv.Atoi(cell(row, "company_id"))
		credentialID, _ := strconv.ParseInt(cell(row, "credentialid"), 10, 64)
		precedence, _ := strconv.Atoi(cell(row, "precedence_in_classification"))
		entries = append(entries, Entry{
			PossibleName:    possible,
			Credential:      credential,
			Classification:  constants.Classification(cell(row, "classification")),
			CompanyID:       companyID,
			CredentialID:    credentialID,
			Precedence:      precedence,
			possibleUpper:   strings.ToUpper(possible),
			credentialUpper: strings.ToUpper(credential),
		})
	}

	logger.Info("catalog.loaded", "source", path, "entries", len(entries))
	return &Catalog{entries: entries, logger: logger}, nil
}

// NewFromEntries builds a catalog directly from rows; used by tests and by
// callers that source the table from the reference store instead of a file.
func NewFromEntries(entries []Entry, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	for i := range entries {
		entries[i].possibleUpper = strings.ToUpper(strings.TrimSpace(entries[i].PossibleName))
		entries[i].credentialUpper = strings.ToUpper(strings.TrimSpace(entries[i].Credential))
	}
	return &Catalog{entries: entries, logger: logger}
}

// Scoped is a company-restricted (and optionally jurisdiction-restricted)
// view of the catalog. It is an immutable snapshot: a classification call
// holding one never observes a reload.
type Scoped struct {
	companyID    int
	entries      []Entry
	byPossible   map[string]int
	byCredential map[string]int
	logger       *slog.Logger
}

// ScopeTo restricts the catalog to one company. An empty result is a valid
// (if degraded) outcome: every lookup against it misses.
func (c *Catalog) ScopeTo(companyID int) *Scoped {
	var scoped []Entry
	for _, e := range c.entries {
		if e.CompanyID == companyID {
			scoped = append(scoped, e)
		}
	}
	// lower precedence value wins when several rows share a possible name
	sort.SliceStable(scoped, func(i, j int) bool { return scoped[i].Precedence < scoped[j].Precedence })

	s := &Scoped{
		companyID:    companyID,
		entries:      scoped,
		byPossible:   make(map[string]int, len(scoped)),
		byCredential: make(map[string]int, len(scoped)),
		logger:       c.logger,
	}
	for i, e := range scoped {
		if _, ok := s.byPossible[e.possibleUpper]; !ok {
			s.byPossible[e.possibleUpper] = i
		}
		if _, ok := s.byCredential[e.credentialUpper]; !ok {
			s.byCredential[e.credentialUpper] = i
		}
	}
	if len(scoped) == 0 {
		c.logger.Warn("catalog.scope.empty", "company_id", companyID)
	}
	return s
}

// FilterHCPByCredentialIDs further restricts the view to HCP entries whose
// credential id is in validIDs (credentials recognized federally or in the
// event's jurisdiction). Non-HCP entries are jurisdiction-agnostic and pass
// through. If filtering would leave zero HCP entries, the receiver is
// returned unchanged: company-only scope is the documented fallback.
func (s *Scoped) FilterHCPByCredentialIDs(validIDs map[int64]struct{}) *Scoped {
	if len(validIDs) == 0 {
		s.logger.Warn("catalog.jurisdiction.no_ids", "company_id", s.companyID)
		return s
	}

	var filtered []Entry
	hcpKept := 0
	for _, e := range s.entries {
		if e.Classification != constants.ClassificationHCP {
			filtered = append(filtered, e)
			continue
		}
		if _, ok := validIDs[e.CredentialID]; ok {
			filtered = append(filtered, e)
			hcpKept++
		}
	}
	if hcpKept == 0 {
		s.logger.Warn("catalog.jurisdiction.empty_hcp_fallback", "company_id", s.companyID)
		return s
	}

	out := &Scoped{
		companyID:    s.companyID,
		entries:      filtered,
		byPossible:   make(map[string]int, len(filtered)),
		byCredential: make(map[string]int, len(filtered)),
		logger:       s.logger,
	}
	for i, e := range filtered {
		if _, ok := out.byPossible[e.possibleUpper]; !ok {
			out.byPossible[e.possibleUpper] = i
		}
		if _, ok := out.byCredential[e.credentialUpper]; !ok {
			out.byCredential[e.credentialUpper] = i
		}
	}
	return out
}

func (s *Scoped) CompanyID() int { return s.companyID }

func (s *Scoped) Empty() bool { return len(s.entries) == 0 }

// LookupPossible finds an entry by normalized possible-name.
func (s *Scoped) LookupPossible(upper string) (Entry, bool) {
	i, ok := s.byPossible[upper]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// LookupCredential finds an entry by normalized canonical credential.
func (s *Scoped) LookupCredential(upper string) (Entry, bool) {
	i, ok := s.byCredential[upper]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Entries exposes the scoped rows for fuzzy matching, in precedence order.
func (s *Scoped) Entries() []Entry { return s.entries }
