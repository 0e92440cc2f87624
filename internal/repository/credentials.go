package repository

import (
	"context"
	"log/slog"
	"strings"

	"github.com/abeeha-baig/ocr/constants"
	"github.com/abeeha-baig/ocr/internal/catalog"
	"github.com/abeeha-baig/ocr/internal/common"
)

// StateCredentialIDs returns the ids of HCP credentials recognized either
// federally or in the given state, for one company. The caller feeds the set
// to the catalog's jurisdiction filter; an empty set means company-only
// classification.
func (s *Store) StateCredentialIDs(ctx context.Context, venueState string, companyID int) (map[int64]struct{}, error) {
	state := strings.ToLower(strings.TrimSpace(venueState))
	if state == "" {
		return nil, nil
	}

	const q = `
		SELECT DISTINCT a.id
		FROM tbl_CredentialClassification a
		INNER JOIN tbl_State_HCPCredential b ON a.id = b.credentialid
		WHERE LOWER(b.state) IN ('federal', $1)
		  AND LOWER(a.classification) = 'hcp'
		  AND a.company_id = $2`

	rows, err := s.DB.QueryContext(ctx, q, state, companyID)
	if err != nil {
		return nil, common.NewAppError("DATABASE", "state credential query", err)
	}
	defer rows.Close()

	ids := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, common.NewAppError("DATABASE", "state credential scan", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DATABASE", "state credential rows", err)
	}

	s.logger.Debug("repository.state_credentials",
		"state", state, "company_id", companyID, "count", len(ids))
	return ids, nil
}

// CatalogEntries loads the credential mapping table from the store, as an
// alternative to the workbook loader when the tables live in the database.
func (s *Store) CatalogEntries(ctx context.Context, logger *slog.Logger) (*catalog.Catalog, error) {
	const q = `
		SELECT pn.possiblenames, cc.credential, cc.classification, cc.company_id,
		       pn.credentialid, cc.precedence_in_classification
		FROM tbl_Credential_PossibleNames pn
		INNER JOIN tbl_CredentialClassification cc ON pn.credentialid = cc.id
		ORDER BY cc.credential, pn.possiblenames`

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, common.NewAppError("DATABASE", "catalog query", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var classification string
		if err := rows.Scan(&e.PossibleName, &e.Credential, &classification,
			&e.CompanyID, &e.CredentialID, &e.Precedence); err != nil {
			return nil, common.NewAppError("DATABASE", "catalog scan", err)
		}
		e.Classification = constants.Classification(classification)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DATABASE", "catalog rows", err)
	}

	s.logger.Info("repository.catalog_loaded", "entries", len(entries))
	return catalog.NewFromEntries(entries, logger), nil
}
