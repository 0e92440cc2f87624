package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/catalog"
)

func testScope(t *testing.T) *catalog.Scoped {
	t.Helper()
	cat := catalog.NewFromEntries([]catalog.Entry{
		{PossibleName: "MD", Credential: "MD", Classification: constants.ClassificationHCP, CompanyID: 1, CredentialID: 1, Precedence: 1},
		{PossibleName: "M.D.", Credential: "MD", Classification: constants.ClassificationHCP, CompanyID: 1, CredentialID: 1, Precedence: 2},
		{PossibleName: "Nurse Practitioner", Credential: "NP", Classification: constants.ClassificationHCP, CompanyID: 1, CredentialID: 2, Precedence: 1},
		{PossibleName: "RN", Credential: "RN", Classification: constants.ClassificationHCP, CompanyID: 1, CredentialID: 3, Precedence: 1},
		{PossibleName: "Office Manager", Credential: "Office Staff", Classification: constants.ClassificationNonHCP, CompanyID: 1, CredentialID: 4, Precedence: 1},
		{PossibleName: "PharmD", Credential: "PharmD", Classification: constants.ClassificationHCP, CompanyID: 2, CredentialID: 5, Precedence: 1},
	}, nil)
	return cat.ScopeTo(1)
}

func TestParseLines(t *testing.T) {
	raw := "Some header noise\n- John Doe, MD\n- Jane Smith, Nurse Practitioner\nnot a record line\n- Trailing Person, RN\nCOMPANY_ID: 2\n"
	records := ParseLines(raw)
	require.Len(t, records, 3)
	assert.Equal(t, "John Doe", records[0].Name)
	assert.Equal(t, "MD", records[0].RawCredential)
	assert.Equal(t, "Jane Smith", records[1].Name)
	assert.Equal(t, "Nurse Practitioner", records[1].RawCredential)
}

func TestParseLines_Empty(t *testing.T) {
	assert.Empty(t, ParseLines(""))
	assert.Empty(t, ParseLines("no records here\njust prose"))
}

func TestCompanyID(t *testing.T) {
	assert.Equal(t, 2, CompanyID("- A, MD\nCOMPANY_ID: 2"))
	assert.Equal(t, 3, CompanyID("company_id: 3"))
	assert.Equal(t, 1, CompanyID("no trailer at all"))
	assert.Equal(t, 1, CompanyID("COMPANY_ID: 0"))
}

func TestParseCompanyID_ReportsTrailerPresence(t *testing.T) {
	id, ok := ParseCompanyID("- A, MD\nCOMPANY_ID: 2")
	assert.Equal(t, 2, id)
	assert.True(t, ok)

	id, ok = ParseCompanyID("no trailer at all")
	assert.Equal(t, 1, id)
	assert.False(t, ok)

	// an unusable trailer is the same as no trailer
	id, ok = ParseCompanyID("COMPANY_ID: 0")
	assert.Equal(t, 1, id)
	assert.False(t, ok)
}

func TestClassify_ExactPossibleName(t *testing.T) {
	e := NewEngine(Config{}, nil)
	records := e.Classify("- John Doe, M.D.", testScope(t))
	require.Len(t, records, 1)
	assert.Equal(t, constants.ClassificationHCP, records[0].Classification)
	assert.Equal(t, "MD", records[0].CanonicalCredential)
	assert.Equal(t, float64(100), records[0].MatchScore)
	assert.Equal(t, constants.MatchExactPossibleNames, records[0].MatchMethod)
}

func TestClassify_ExactCredential(t *testing.T) {
	e := NewEngine(Config{}, nil)
	// "Office Staff" is a canonical credential, not a possible name
	records := e.Classify("- Pat Admin, Office Staff", testScope(t))
	require.Len(t, records, 1)
	assert.Equal(t, constants.ClassificationNonHCP, records[0].Classification)
	assert.Equal(t, constants.MatchExactCredential, records[0].MatchMethod)
}

func TestClassify_FuzzyMatch(t *testing.T) {
	e := NewEngine(Config{}, nil)
	// word order scrambled plus a typo; token sort recovers it
	records := e.Classify("- Jane Smith, Practitioner Nurse", testScope(t))
	require.Len(t, records, 1)
	assert.Equal(t, constants.ClassificationHCP, records[0].Classification)
	assert.Equal(t, "NP", records[0].CanonicalCredential)
	assert.Equal(t, constants.MatchFuzzyPossibleNames, records[0].MatchMethod)
	assert.GreaterOrEqual(t, records[0].MatchScore, 80.0)
}

func TestClassify_ShortCredentialSkipsFuzzy(t *testing.T) {
	e := NewEngine(Config{}, nil)
	// "RM" is one edit from "RN" but below the fuzzy length gate
	records := e.Classify("- Close Call, RM", testScope(t))
	require.Len(t, records, 1)
	assert.Equal(t, constants.ClassificationNonHCP, records[0].Classification)
	assert.Equal(t, constants.MatchNone, records[0].MatchMethod)
	assert.Equal(t, "RM", records[0].CanonicalCredential)
	assert.Equal(t, float64(0), records[0].MatchScore)
}

func TestClassify_NoMatchKeepsRawCredential(t *testing.T) {
	e := NewEngine(Config{}, nil)
	records := e.Classify("- Somebody, Completely Unknown Title", testScope(t))
	require.Len(t, records, 1)
	assert.Equal(t, constants.ClassificationNonHCP, records[0].Classification)
	assert.Equal(t, "Completely Unknown Title", records[0].CanonicalCredential)
}

func TestClassify_CompanyScopeIsolation(t *testing.T) {
	e := NewEngine(Config{}, nil)
	// PharmD belongs to company 2 and must not match in company 1 scope
	records := e.Classify("- Cross Company, PharmD", testScope(t))
	require.Len(t, records, 1)
	assert.Equal(t, constants.ClassificationNonHCP, records[0].Classification)
	assert.Equal(t, constants.MatchNone, records[0].MatchMethod)
}

func TestClassify_FieldEmployeeOverridesBodyRecord(t *testing.T) {
	e := NewEngine(Config{}, nil)
	raw := "FIELD EMPLOYEE: Sam Rep\n- Sam Rep, MD\n- John Doe, MD"
	records := e.Classify(raw, testScope(t))
	require.Len(t, records, 2)

	assert.Equal(t, "Sam Rep", records[0].Name)
	assert.Equal(t, constants.ClassificationFieldEmployee, records[0].Classification)
	assert.Equal(t, constants.MatchFieldEmployee, records[0].MatchMethod)
	// the credential they signed with survives as the raw value
	assert.Equal(t, "MD", records[0].RawCredential)

	assert.Equal(t, constants.ClassificationHCP, records[1].Classification)
}

func TestClassify_FieldEmployeeSyntheticRecord(t *testing.T) {
	e := NewEngine(Config{}, nil)
	raw := "FIELD EMPLOYEE: Sam Rep\n- John Doe, MD"
	records := e.Classify(raw, testScope(t))
	require.Len(t, records, 2)
	assert.Equal(t, "Sam Rep", records[1].Name)
	assert.Equal(t, constants.ClassificationFieldEmployee, records[1].Classification)
}

func TestDedup_FirstOccurrenceWins(t *testing.T) {
	records := []ClassifiedRecord{
		{Name: "John Doe", RawCredential: "MD"},
		{Name: "JOHN DOE", RawCredential: "RN"},
		{Name: "Jane Smith", RawCredential: "NP"},
	}
	out := Dedup(records)
	require.Len(t, out, 2)
	assert.Equal(t, "MD", out[0].RawCredential)
	assert.Equal(t, "Jane Smith", out[1].Name)
}

func TestDedup_Idempotent(t *testing.T) {
	records := []ClassifiedRecord{
		{Name: "A"}, {Name: "a"}, {Name: "B"},
	}
	once := Dedup(records)
	twice := Dedup(once)
	assert.Equal(t, once, twice)
}

func TestFieldEmployeeName(t *testing.T) {
	assert.Equal(t, "Sam Rep", FieldEmployeeName("header\nFIELD EMPLOYEE: Sam Rep\nbody"))
	assert.Equal(t, "Sam Rep", FieldEmployeeName("Field Employee: Sam Rep"))
	assert.Equal(t, "", FieldEmployeeName("no header here"))
}
