package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "dittoload/pkg/logx"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pushes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	at          TEXT    NOT NULL,
	thing_id    TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	status      INTEGER,
	duration_ms INTEGER NOT NULL,
	err         TEXT
);
CREATE INDEX IF NOT EXISTS pushes_run ON pushes(run_id);

CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	ended_at   TEXT,
	namespace  TEXT NOT NULL,
	dry_run    INTEGER NOT NULL,
	pushes     INTEGER NOT NULL DEFAULT 0,
	failures   INTEGER NOT NULL DEFAULT 0,
	err        TEXT
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite journal opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendPush(ctx context.Context, r PushRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pushes(run_id, at, thing_id, outcome, status, duration_ms, err)
		 VALUES(?,?,?,?,?,?,?)`,
		r.RunID, r.At.UTC().Format(time.RFC3339Nano), r.ThingID, r.Outcome,
		nullInt(r.Status), r.DurationMS, nullStr(r.Error),
	)
	return err
}

// RecordRun upserts by run id so the end marker completes the start row.
func (s *sqliteStore) RecordRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	var ended any
	if !r.EndedAt.IsZero() {
		ended = r.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, started_at, ended_at, namespace, dry_run, pushes, failures, err)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   ended_at=excluded.ended_at, pushes=excluded.pushes,
		   failures=excluded.failures, err=excluded.err`,
		r.RunID, r.StartedAt.UTC().Format(time.RFC3339Nano), ended, r.Namespace, r.DryRun,
		int64(r.Pushes), int64(r.Failures), nullStr(r.Error),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
