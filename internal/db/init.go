// Package db opens the PostgreSQL pool backing the kv store and creates
// its schema.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Revisions are drawn from kv_revision_seq so a re-created key never
// repeats a revision.
const schema = `
CREATE SEQUENCE IF NOT EXISTS kv_revision_seq;

CREATE TABLE IF NOT EXISTS kv_entries (
    bucket   TEXT   NOT NULL,
    key      TEXT   NOT NULL,
    value    JSONB  NOT NULL,
    revision BIGINT NOT NULL DEFAULT nextval('kv_revision_seq'),
    PRIMARY KEY (bucket, key)
);
`

// InitPostgres opens dsn, checks the connection and applies the schema.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := ApplySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// ApplySchema creates the revision sequence and the kv_entries table when
// missing.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
