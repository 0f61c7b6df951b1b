package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the outcome journal.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines file
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OutcomeEntry records one terminal job outcome (delivered or failed).
// Keep it compact and schema-stable; it is write-only telemetry and is never
// read back into queue state.
type OutcomeEntry struct {
	At        time.Time
	JobID     string
	UserID    string
	Status    string
	Priority  string
	Channels  string // comma-joined, in attempt order
	Attempts  int
	LastError string
}
