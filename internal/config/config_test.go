package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: true
engine:
  tick_interval: 250ms
queue:
  default_max_retries: 5
  retry_base: 100ms
senders:
  send_timeout: 2s
  rate_per_sec: 10
  email_api_key: sg-test
storage:
  driver: file
  path: ./outcomes.jsonl
retention:
  max_age: 72h
  schedule: "0 4 * * *"
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q, want debug", cfg.Logging.Level)
	}
	if got := cfg.TickInterval(); got != 250*time.Millisecond {
		t.Fatalf("TickInterval = %v, want 250ms", got)
	}
	if cfg.Queue.DefaultMaxRetries != 5 {
		t.Fatalf("DefaultMaxRetries = %d, want 5", cfg.Queue.DefaultMaxRetries)
	}
	if got := cfg.RetryBase(); got != 100*time.Millisecond {
		t.Fatalf("RetryBase = %v, want 100ms", got)
	}
	if got := cfg.RetentionMaxAge(); got != 72*time.Hour {
		t.Fatalf("RetentionMaxAge = %v, want 72h", got)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("Driver = %q, want file", cfg.Storage.Driver)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: info
  verbosity: extreme
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
engine:
  tick_interval: soon
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestDefaultsApplyWhenFieldsOmitted(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", "logging:\n  level: warn\n")
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.TickInterval(); got != time.Second {
		t.Fatalf("TickInterval = %v, want default 1s", got)
	}
	if got := cfg.RetryBase(); got != 500*time.Millisecond {
		t.Fatalf("RetryBase = %v, want default 500ms", got)
	}
	if got := cfg.SendTimeout(); got != 10*time.Second {
		t.Fatalf("SendTimeout = %v, want default 10s", got)
	}
	if got := cfg.RetentionMaxAge(); got != 0 {
		t.Fatalf("RetentionMaxAge = %v, want 0 (disabled)", got)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "0", want: 0},
		{raw: "500ms", want: 500 * time.Millisecond},
		{raw: " 2s ", want: 2 * time.Second},
		{raw: "-1s", wantErr: true},
		{raw: "later", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("test.field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging":{"level":"error","console":false}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Fatalf("Level = %q, want error", cfg.Logging.Level)
	}
}
