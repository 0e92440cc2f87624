package classify

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/catalog"
)

var (
	// one attendee entry per line: "- Name, Credential"
	lineRe = regexp.MustCompile(`^-\s*(.+?),\s*(.+)$`)
	// trailer emitted by the extraction prompt; company 1 when absent
	companyRe = regexp.MustCompile(`(?i)COMPANY_ID:\s*(\d+)`)
	// header line naming the designated field representative
	fieldEmployeeRe = regexp.MustCompile(`(?i)FIELD\s*EMPLOYEE:\s*([^,\n]+)`)
)

// AttendeeRecord is one parsed line of extracted text, in source order.
type AttendeeRecord struct {
	Name          string
	RawCredential string
}

// ClassifiedRecord is the classification outcome for one surviving attendee.
type ClassifiedRecord struct {
	Name                string
	RawCredential       string
	CanonicalCredential string
	Classification      constants.Classification
	MatchScore          float64
	MatchMethod         string
}

// Config tunes the matching tiers.
type Config struct {
	// FuzzyThreshold is the minimum token-sort similarity for a fuzzy hit.
	FuzzyThreshold float64
	// FuzzyMinLength gates fuzzy matching: shorter raw credentials (the
	// abbreviation range: "MD", "RN") are exact-match only, since short
	// tokens fuzzy-hit unrelated longer strings far too easily.
	FuzzyMinLength int
}

// Engine assigns compliance classifications to extracted attendee records
// using a scoped credential catalog. It never fails on malformed input;
// unmatched credentials survive as Non-HCP with score 0.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = 80
	}
	if cfg.FuzzyMinLength <= 0 {
		cfg.FuzzyMinLength = 5
	}
	return &Engine{cfg: cfg, logger: logger}
}

// ParseLines extracts attendee records from raw extraction output. Lines not
// matching the "- Name, Credential" pattern are ignored; the format is
// advisory and stray lines are expected.
func ParseLines(rawText string) []AttendeeRecord {
	var records []AttendeeRecord
	for _, line := range strings.Split(rawText, "\n") {
		m := lineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		records = append(records, AttendeeRecord{
			Name:          strings.TrimSpace(m[1]),
			RawCredential: strings.TrimSpace(m[2]),
		})
	}
	return records
}

// CompanyID reads the COMPANY_ID trailer from extraction output, defaulting
// to 1 when absent or unparsable.
func CompanyID(rawText string) int {
	id, _ := ParseCompanyID(rawText)
	return id
}

// ParseCompanyID additionally reports whether the trailer was actually
// present and usable, so callers can try other sources before settling on
// the default.
func ParseCompanyID(rawText string) (int, bool) {
	m := companyRe.FindStringSubmatch(rawText)
	if m == nil {
		return 1, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 1, false
	}
	return id, true
}

// FieldEmployeeName returns the designated field representative named in the
// sheet header, or "".
func FieldEmployeeName(rawText string) string {
	m := fieldEmployeeRe.FindStringSubmatch(rawText)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Classify parses rawText and classifies every attendee against scope.
// The result is deduplicated by case-insensitive name, first occurrence wins.
func (e *Engine) Classify(rawText string, scope *catalog.Scoped) []ClassifiedRecord {
	attendees := ParseLines(rawText)

	records := make([]ClassifiedRecord, 0, len(attendees))
	for _, a := range attendees {
		classification, canonical, score, method := e.classifyCredential(a.RawCredential, scope)
		records = append(records, ClassifiedRecord{
			Name:                a.Name,
			RawCredential:       a.RawCredential,
			CanonicalCredential: canonical,
			Classification:      classification,
			MatchScore:          score,
			MatchMethod:         method,
		})
	}

	records = e.applyFieldEmployeeOverride(rawText, records)
	return Dedup(records)
}

// classifyCredential applies the matching tiers in order, first success wins.
func (e *Engine) classifyCredential(raw string, scope *catalog.Scoped) (constants.Classification, string, float64, string) {
	upper := strings.ToUpper(strings.TrimSpace(raw))

	if entry, ok := scope.LookupPossible(upper); ok {
		return entry.Classification, entry.Credential, 100, constants.MatchExactPossibleNames
	}
	if entry, ok := scope.LookupCredential(upper); ok {
		return entry.Classification, entry.Credential, 100, constants.MatchExactCredential
	}
	if len(upper) >= e.cfg.FuzzyMinLength {
		if entry, score, ok := e.fuzzyMatch(upper, scope); ok {
			return entry.Classification, entry.Credential, score, constants.MatchFuzzyPossibleNames
		}
	}
	return constants.ClassificationNonHCP, raw, 0, constants.MatchNone
}

// fuzzyMatch finds the best token-sort match over the scope's possible names.
func (e *Engine) fuzzyMatch(upper string, scope *catalog.Scoped) (catalog.Entry, float64, bool) {
	var best catalog.Entry
	bestScore := 0.0
	for _, entry := range scope.Entries() {
		score := TokenSortRatio(upper, entry.PossibleUpper())
		if score > bestScore {
			best = entry
			bestScore = score
		}
	}
	if bestScore >= e.cfg.FuzzyThreshold {
		return best, bestScore, true
	}
	return catalog.Entry{}, 0, false
}

// applyFieldEmployeeOverride enforces the header convention: the named field
// representative is a Field Employee no matter what credential they signed
// with, appended as a synthetic record if absent from the body.
func (e *Engine) applyFieldEmployeeOverride(rawText string, records []ClassifiedRecord) []ClassifiedRecord {
	name := FieldEmployeeName(rawText)
	if name == "" {
		return records
	}

	upper := strings.ToUpper(name)
	found := false
	for i := range records {
		if strings.ToUpper(records[i].Name) != upper {
			continue
		}
		records[i].Classification = constants.ClassificationFieldEmployee
		records[i].CanonicalCredential = string(constants.ClassificationFieldEmployee)
		records[i].MatchScore = 100
		records[i].MatchMethod = constants.MatchFieldEmployee
		found = true
	}
	if !found {
		records = append(records, ClassifiedRecord{
			Name:                name,
			RawCredential:       string(constants.ClassificationFieldEmployee),
			CanonicalCredential: string(constants.ClassificationFieldEmployee),
			Classification:      constants.ClassificationFieldEmployee,
			MatchScore:          100,
			MatchMethod:         constants.MatchFieldEmployee,
		})
	}
	e.logger.Debug("classify.field_employee", "name", name, "in_body", found)
	return records
}

// Dedup keeps the first occurrence of each name (case-insensitive),
// preserving input order. Running it twice yields the same set.
func Dedup(records []ClassifiedRecord) []ClassifiedRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		key := strings.ToUpper(r.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
