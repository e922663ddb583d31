// Package sqlite provides SQLite-backed agreement, artifact, contract, and
// resource stores.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
)

const schema = `
CREATE TABLE IF NOT EXISTS agreements (
	id               TEXT PRIMARY KEY,
	remote_id        TEXT NOT NULL DEFAULT '',
	consumer         TEXT NOT NULL DEFAULT '',
	provider         TEXT NOT NULL DEFAULT '',
	contract_date    TEXT NOT NULL DEFAULT '',
	start_date       TEXT NOT NULL DEFAULT '',
	end_date         TEXT NOT NULL DEFAULT '',
	rules            TEXT NOT NULL DEFAULT '{}',
	confirmed        INTEGER NOT NULL DEFAULT 0,
	serialized_value BLOB,
	value_digest     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS artifacts (
	id            TEXT PRIMARY KEY,
	remote_id     TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	creation_date TEXT NOT NULL DEFAULT '',
	access_count  INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	data_ref      TEXT NOT NULL DEFAULT '',
	data          BLOB
);

CREATE TABLE IF NOT EXISTS agreement_artifacts (
	agreement_id TEXT NOT NULL,
	artifact_id  TEXT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
	PRIMARY KEY (agreement_id, artifact_id)
);
CREATE INDEX IF NOT EXISTS idx_agreement_artifacts_artifact ON agreement_artifacts(artifact_id);

CREATE TABLE IF NOT EXISTS contracts (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	consumer   TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL DEFAULT '',
	end_date   TEXT NOT NULL DEFAULT '',
	rules      TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS resources (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	contract_ids TEXT NOT NULL DEFAULT '[]',
	artifact_ids TEXT NOT NULL DEFAULT '[]'
);
`

// Config configures the database.
type Config struct {
	// Path is the database file.
	Path string
	// BusyTimeout is how long to wait for locks (default 5s).
	BusyTimeout time.Duration
}

// DB is an open store database.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database in WAL mode and applies the schema.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Agreements returns the agreement store.
func (d *DB) Agreements() *AgreementStore { return &AgreementStore{db: d.db} }

// Artifacts returns the artifact store, which is also the artifact data source.
func (d *DB) Artifacts() *ArtifactStore { return &ArtifactStore{db: d.db} }

// Contracts returns the offer store.
func (d *DB) Contracts() *ContractStore { return &ContractStore{db: d.db} }

// Resources returns the resource store.
func (d *DB) Resources() *ResourceStore { return &ResourceStore{db: d.db} }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// persistErr wraps a backend failure.
func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", contract.ErrPersistenceFailure, op, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, contract.ErrResourceNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

// inTx runs fn in a transaction and commits when fn succeeds.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}
