package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and applies the
// schema.
func NewDB(connString string, embeddingDim int) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db, embeddingDim); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB, embeddingDim int) error {
	if embeddingDim <= 0 {
		embeddingDim = 4096
	}
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS employees (
		id          UUID PRIMARY KEY,
		employee_id TEXT NOT NULL UNIQUE,
		full_name   TEXT NOT NULL,
		program     TEXT NOT NULL DEFAULT '',
		photo_path  TEXT NOT NULL,
		embedding   vector(%d),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_log (
		employee_id TEXT NOT NULL REFERENCES employees(employee_id),
		day         DATE NOT NULL,
		check_in    TIMESTAMPTZ NOT NULL,
		check_out   TIMESTAMPTZ,
		PRIMARY KEY (employee_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance_log(day DESC, check_in DESC);

	CREATE TABLE IF NOT EXISTS devices (
		device_id     TEXT PRIMARY KEY,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		device_id  TEXT NOT NULL,
		token      TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);
	`, embeddingDim)
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
