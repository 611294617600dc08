package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

//go:embed schema.sql
var schemaSQL string

//go:embed schema_sqlite.sql
var schemaSQLite string

// NewConnection opens the configured database. MySQL is the production store;
// sqlite serves local runs and tests.
func NewConnection(cfg *config.Config) (*sql.DB, error) {
	driver := cfg.Database.Driver
	dsn := cfg.DatabaseDSN()
	if driver == DriverSQLite {
		dsn = cfg.Database.Path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared and writes serialized.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
		db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the reports, exams and submissions tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := schemaSQL
	if driver == DriverSQLite {
		schema = schemaSQLite
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
