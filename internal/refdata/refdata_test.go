package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeeha-baig/ocr/internal/common"
)

const sampleExport = `ExpenseV3_ID|AttendeeV3_FirstName|AttendeeV3_LastName|AttendeeV3_Custom13|ExpenseV3_Custom21|User_companyId
exp001|John|Doe|MD|Pennsylvania|1
exp001|Jane|Smith||Pennsylvania|1
exp002|Bob|Brown|RN|Texas|2
`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concur.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	table, err := Load(writeExport(t, sampleExport), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exp001", "exp002"}, table.Expenses())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), nil)
	require.Error(t, err)
	var ce *common.CatalogError
	assert.ErrorAs(t, err, &ce)
}

func TestHCPNames(t *testing.T) {
	table, err := Load(writeExport(t, sampleExport), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"John Doe", "Jane Smith"}, table.HCPNames("exp001"))
	assert.Equal(t, []string{"Bob Brown"}, table.HCPNames("exp002"))
	assert.Empty(t, table.HCPNames("unknown"))
}

func TestCredentialHints(t *testing.T) {
	table, err := Load(writeExport(t, sampleExport), nil)
	require.NoError(t, err)

	hints := table.CredentialHints("exp001")
	// Jane has no recorded credential and is excluded
	assert.Equal(t, map[string]string{"John Doe": "MD"}, hints)
}

func TestVenueState(t *testing.T) {
	table, err := Load(writeExport(t, sampleExport), nil)
	require.NoError(t, err)

	assert.Equal(t, "Pennsylvania", table.VenueState("exp001"))
	assert.Equal(t, "Texas", table.VenueState("exp002"))
	assert.Equal(t, "", table.VenueState("unknown"))
}

func TestCompanyID(t *testing.T) {
	table, err := Load(writeExport(t, sampleExport), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, table.CompanyID("exp001"))
	assert.Equal(t, 2, table.CompanyID("exp002"))
	assert.Equal(t, 1, table.CompanyID("unknown"))
}

func TestExpenseIDFromFilename(t *testing.T) {
	id, err := ExpenseIDFromFilename("94420BB5DB3B4AE48A4E_HCP Business Lunch_gWgglnG97TnM69nd$pup11oA_ProjectID_2026-01-27T195657.pdf")
	require.NoError(t, err)
	assert.Equal(t, "gWgglnG97TnM69nd$pup11oA", id)
}

func TestExpenseIDFromFilename_WithDirectory(t *testing.T) {
	id, err := ExpenseIDFromFilename("/some/dir/abc_HCP Spend_exp123_rest.pdf")
	require.NoError(t, err)
	assert.Equal(t, "exp123", id)
}

func TestExpenseIDFromFilename_FallbackToStem(t *testing.T) {
	id, err := ExpenseIDFromFilename("plain-scan.pdf")
	require.Error(t, err)
	var pe *common.ParseError
	assert.ErrorAs(t, err, &pe)
	// the stem still comes back so processing can proceed
	assert.Equal(t, "plain-scan", id)
}
