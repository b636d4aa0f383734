package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file (pure Go driver)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PushRecord is one push attempt. Keep it compact and schema-stable.
type PushRecord struct {
	RunID      string    `json:"run_id"`
	At         time.Time `json:"at"`
	ThingID    string    `json:"thing_id"`
	Outcome    string    `json:"outcome"`
	Status     int       `json:"status,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// RunRecord marks the start (EndedAt zero) or the end of a run.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Namespace string    `json:"namespace"`
	DryRun    bool      `json:"dry_run"`
	Pushes    uint64    `json:"pushes"`
	Failures  uint64    `json:"failures"`
	Error     string    `json:"error,omitempty"`
}
