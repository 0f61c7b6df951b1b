package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "notifyd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q) error: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) = %T, want nil", driver, st)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreAppendsOutcomes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal", "outcomes.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	entries := []OutcomeEntry{
		{JobID: "j1", UserID: "u1", Status: "delivered", Priority: "high", Channels: "push,email", Attempts: 2},
		{JobID: "j2", Status: "failed", Priority: "low", Channels: "sms", Attempts: 3, LastError: "provider down"},
	}
	for _, e := range entries {
		if err := st.AppendOutcome(context.Background(), e); err != nil {
			t.Fatalf("AppendOutcome(%s) error: %v", e.JobID, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var got []outcomeRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec outcomeRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad journal line %q: %v", sc.Text(), err)
		}
		got = append(got, rec)
	}
	if len(got) != 2 {
		t.Fatalf("journal lines = %d, want 2", len(got))
	}
	if got[0].JobID != "j1" || got[0].Status != "delivered" || got[0].Attempts != 2 {
		t.Fatalf("record 0 = %+v", got[0])
	}
	if got[1].JobID != "j2" || got[1].LastError != "provider down" {
		t.Fatalf("record 1 = %+v", got[1])
	}
	if _, err := time.Parse(time.RFC3339Nano, got[0].At); err != nil {
		t.Fatalf("at field not RFC3339: %v", err)
	}
}

func TestFileStoreClosedAppendFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := st.AppendOutcome(context.Background(), OutcomeEntry{JobID: "j"}); err == nil {
		t.Fatal("expected error appending to closed store")
	}
}
