package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresDriverName is the database/sql driver registered by pgx
const PostgresDriverName = "pgx"

// NewPostgresStorage creates a PostgreSQL-backed storage instance.
// Several llmdiag processes may share one database; the ledger's
// compare-and-set keeps their writes consistent.
func NewPostgresStorage(ctx context.Context, dsn string) (*SQLStorage, error) {
	db, err := sql.Open(PostgresDriverName, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := ApplyMigrations(ctx, db, dialectPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLStorage{db: db, dialect: dialectPostgres, driver: PostgresDriverName}, nil
}

// IsPostgresDSN reports whether dsn addresses a PostgreSQL server
func IsPostgresDSN(dsn string) bool {
	dsn = strings.TrimSpace(dsn)
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open picks a backend from the DSN: postgres:// URLs use PostgreSQL,
// anything else is treated as a SQLite path.
func Open(ctx context.Context, dsn string) (Storage, error) {
	if IsPostgresDSN(dsn) {
		return NewPostgresStorage(ctx, dsn)
	}
	return NewSQLiteStorage(dsn)
}
