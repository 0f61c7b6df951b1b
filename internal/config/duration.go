package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a duration-string config field. Empty and "0"
// mean unset/disabled; negative durations are rejected. path names the field
// in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	switch s := strings.TrimSpace(raw); s {
	case "", "0":
		return 0, nil
	default:
		d, err := time.ParseDuration(s)
		switch {
		case err != nil:
			return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
		case d < 0:
			return 0, fmt.Errorf("%s: duration must be >= 0", path)
		}
		return d, nil
	}
}

// ParseDurationOrDefault substitutes def for an unset field.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
