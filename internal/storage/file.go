package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "notifyd/pkg/logx"
)

// fileStore appends outcomes as JSON Lines: one object per terminal job.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
}

type outcomeRecord struct {
	At        string `json:"at"`
	JobID     string `json:"job_id"`
	UserID    string `json:"user_id,omitempty"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	Channels  string `json:"channels"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, file: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendOutcome(ctx context.Context, e OutcomeEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.file).Encode(outcomeRecord{
		At:        e.At.Format(time.RFC3339Nano),
		JobID:     e.JobID,
		UserID:    e.UserID,
		Status:    e.Status,
		Priority:  e.Priority,
		Channels:  e.Channels,
		Attempts:  e.Attempts,
		LastError: e.LastError,
	})
}
