package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/abeeha-baig/ocr/internal/common"
)

// Store is the reference database holding the credential tables. Postgres in
// production, in-memory SQLite for standalone batch runs.
type Store struct {
	DB     *sql.DB
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open creates a pgx pool and wraps it as database/sql.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, common.NewAppError("DATABASE", "invalid DSN", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "signin-batch"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewAppError("DATABASE", "connect failed", err)
	}

	logger.Info("successfully connected to database")
	return &Store{DB: stdlib.OpenDBFromPool(pool), pool: pool, logger: logger}, nil
}

// OpenInMemory starts an empty SQLite store with the credential schema in
// place. Batch runs without database infrastructure use it; every
// jurisdiction query misses and classification falls back to company scope.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, common.NewAppError("DATABASE", "open sqlite", err)
	}
	// the in-memory database vanishes when its last connection closes
	db.SetMaxOpenConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("using in-memory reference store")
	return &Store{DB: db, logger: logger}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tbl_CredentialClassification (
			id INTEGER PRIMARY KEY,
			credential TEXT NOT NULL,
			classification TEXT NOT NULL,
			company_id INTEGER NOT NULL,
			precedence_in_classification INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS tbl_Credential_PossibleNames (
			id INTEGER PRIMARY KEY,
			credentialid INTEGER NOT NULL REFERENCES tbl_CredentialClassification(id),
			possiblenames TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tbl_State_HCPCredential (
			id INTEGER PRIMARY KEY,
			credentialid INTEGER NOT NULL REFERENCES tbl_CredentialClassification(id),
			state TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return common.NewAppError("DATABASE", "schema bootstrap", err)
		}
	}
	return nil
}

// Close closes the database connections gracefully.
func (s *Store) Close() {
	s.logger.Info("closing database connections")
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.logger.Error("failed to close database", "error", err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.logger.Info("database connections closed")
}

// HealthCheck pings the store to catch DSN issues early.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	s.logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.DB.PingContext(ctx); err != nil {
		s.logger.Error("database ping failed", "error", err)
		return common.NewAppError("DATABASE", "ping failed", err)
	}
	return nil
}
