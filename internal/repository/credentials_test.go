package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	stmts := []string{
		`INSERT INTO tbl_CredentialClassification (id, credential, classification, company_id, precedence_in_classification) VALUES
			(1, 'MD', 'HCP', 1, 1),
			(2, 'RN', 'HCP', 1, 1),
			(3, 'Office Staff', 'Non-HCP', 1, 1),
			(4, 'PharmD', 'HCP', 2, 1)`,
		`INSERT INTO tbl_Credential_PossibleNames (id, credentialid, possiblenames) VALUES
			(1, 1, 'MD'),
			(2, 1, 'M.D.'),
			(3, 2, 'RN'),
			(4, 3, 'Office Manager'),
			(5, 4, 'PharmD')`,
		`INSERT INTO tbl_State_HCPCredential (id, credentialid, state) VALUES
			(1, 1, 'Federal'),
			(2, 2, 'Pennsylvania'),
			(3, 4, 'Texas')`,
	}
	for _, s := range stmts {
		_, err := store.DB.Exec(s)
		require.NoError(t, err)
	}
	return store
}

func TestOpenInMemory_SchemaBootstrap(t *testing.T) {
	store, err := OpenInMemory(nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.HealthCheck(context.Background(), 0))
	_, err = store.DB.Exec(`INSERT INTO tbl_CredentialClassification (id, credential, classification, company_id) VALUES (1, 'MD', 'HCP', 1)`)
	assert.NoError(t, err)
}

func TestStateCredentialIDs(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	// Pennsylvania pulls the state-specific RN plus the federal MD
	ids, err := store.StateCredentialIDs(ctx, "Pennsylvania", 1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, ids)

	// matching is case-insensitive
	ids, err = store.StateCredentialIDs(ctx, "  pennsylvania ", 1)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStateCredentialIDs_FederalOnly(t *testing.T) {
	store := seededStore(t)

	ids, err := store.StateCredentialIDs(context.Background(), "Ohio", 1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}}, ids)
}

func TestStateCredentialIDs_CompanyScoped(t *testing.T) {
	store := seededStore(t)

	// Texas rows exist only for company 2's PharmD
	ids, err := store.StateCredentialIDs(context.Background(), "Texas", 1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}}, ids)

	ids, err = store.StateCredentialIDs(context.Background(), "Texas", 2)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{4: {}}, ids)
}

func TestStateCredentialIDs_EmptyState(t *testing.T) {
	store := seededStore(t)
	ids, err := store.StateCredentialIDs(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestCatalogEntries(t *testing.T) {
	store := seededStore(t)

	cat, err := store.CatalogEntries(context.Background(), nil)
	require.NoError(t, err)

	scope := cat.ScopeTo(1)
	require.Len(t, scope.Entries(), 4)

	entry, ok := scope.LookupPossible("M.D.")
	require.True(t, ok)
	assert.Equal(t, "MD", entry.Credential)
	assert.Equal(t, int64(1), entry.CredentialID)
}
