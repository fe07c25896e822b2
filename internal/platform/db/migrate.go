package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RequiredTables lists the tables the dashboard reads and writes.
var RequiredTables = []string{"upload_jobs", "creditors", "invoice_facts", "purchase_line_items"}

// Open opens a database/sql handle over pgx for migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("platform/db: empty dsn")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open: %w", err)
	}
	database.SetMaxOpenConns(1)
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}
	return database, nil
}

// Migrate applies embedded SQL migrations via goose.
func Migrate(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, database, "migrations"); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}

// VerifySchema fails when any required table is missing.
func VerifySchema(ctx context.Context, database *sql.DB) error {
	var missing []string
	for _, table := range RequiredTables {
		var found sql.NullString
		if err := database.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, "public."+table).Scan(&found); err != nil {
			return fmt.Errorf("platform/db: verify %s: %w", table, err)
		}
		if !found.Valid {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("platform/db: missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
