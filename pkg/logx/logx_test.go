package logx

import "testing"

func TestEnabledRespectsLevel(t *testing.T) {
	l := NewConsole("warn")
	if l.Enabled(LevelDebug) {
		t.Fatal("debug enabled on a warn logger")
	}
	if !l.Enabled(LevelError) {
		t.Fatal("error disabled on a warn logger")
	}
	if Nop().Enabled(LevelError) {
		t.Fatal("nop logger reports enabled levels")
	}
}

func TestParseLevel(t *testing.T) {
	if got := parseLevel("verbose", LevelInfo); got != LevelInfo {
		t.Fatalf("parseLevel = %v, want info fallback", got)
	}
	if got := parseLevel("WARNING", LevelInfo); got != LevelWarn {
		t.Fatalf("parseLevel = %v, want warn", got)
	}
}
