// Package config loads notifyd's configuration from YAML or JSON, validates
// it strictly (unknown fields rejected) and watches the file for changes.
//
// Duration fields are strings in Go duration syntax ("500ms", "1s", "72h");
// the typed accessors parse them with defaults.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Engine    EngineConfig    `json:"engine"`
	Queue     QueueConfig     `json:"queue"`
	Senders   SendersConfig   `json:"senders"`
	Storage   StorageConfig   `json:"storage"`
	Retention RetentionConfig `json:"retention"`
}

type LoggingConfig struct {
	Level       string `json:"level"`
	Console     bool   `json:"console"`
	FileEnabled bool   `json:"file_enabled"`
	FilePath    string `json:"file_path"`
}

type EngineConfig struct {
	// TickInterval between process-due-jobs ticks. Default 1s.
	TickInterval string `json:"tick_interval"`
}

type QueueConfig struct {
	// DefaultMaxRetries per channel when a job does not set its own. Default 3.
	DefaultMaxRetries int `json:"default_max_retries"`
	// RetryBase is the first backoff delay. Default 500ms.
	RetryBase string `json:"retry_base"`
}

type SendersConfig struct {
	// SendTimeout bounds one sender call. Default 10s.
	SendTimeout string `json:"send_timeout"`
	// RatePerSec per channel; 0 disables limiting.
	RatePerSec int `json:"rate_per_sec"`

	// Simulated sender credentials (a missing credential makes the matching
	// channel fail, exercising the retry path).
	EmailAPIKey  string `json:"email_api_key"`
	SMSAuthToken string `json:"sms_auth_token"`
	NetworkDelay string `json:"network_delay"`
}

type StorageConfig struct {
	Driver      string `json:"driver"` // "", "none", "file", "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type RetentionConfig struct {
	// MaxAge of terminal jobs; "0" or empty keeps history forever.
	MaxAge string `json:"max_age"`
	// Schedule is a cron spec for the prune run. Default "0 3 * * *".
	Schedule string `json:"schedule"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Engine:  EngineConfig{TickInterval: "1s"},
		Queue:   QueueConfig{DefaultMaxRetries: 3, RetryBase: "500ms"},
		Senders: SendersConfig{SendTimeout: "10s", RatePerSec: 0},
	}
}

// Validate checks every parseable field so a bad file is rejected before it
// reaches any component.
func (c *Config) Validate() error {
	if _, err := ParseDurationOrDefault("engine.tick_interval", c.Engine.TickInterval, time.Second); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("queue.retry_base", c.Queue.RetryBase, 500*time.Millisecond); err != nil {
		return err
	}
	if c.Queue.DefaultMaxRetries < 0 {
		return fmt.Errorf("queue.default_max_retries: must be >= 0")
	}
	if _, err := ParseDurationOrDefault("senders.send_timeout", c.Senders.SendTimeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := ParseDurationField("senders.network_delay", c.Senders.NetworkDelay); err != nil {
		return err
	}
	if c.Senders.RatePerSec < 0 {
		return fmt.Errorf("senders.rate_per_sec: must be >= 0")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("retention.max_age", c.Retention.MaxAge); err != nil {
		return err
	}
	return nil
}

// TickInterval returns the parsed engine tick interval.
func (c *Config) TickInterval() time.Duration {
	d, _ := ParseDurationOrDefault("engine.tick_interval", c.Engine.TickInterval, time.Second)
	return d
}

// RetryBase returns the parsed first backoff delay.
func (c *Config) RetryBase() time.Duration {
	d, _ := ParseDurationOrDefault("queue.retry_base", c.Queue.RetryBase, 500*time.Millisecond)
	return d
}

// SendTimeout returns the parsed per-send bound.
func (c *Config) SendTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("senders.send_timeout", c.Senders.SendTimeout, 10*time.Second)
	return d
}

// NetworkDelay returns the simulated sender latency.
func (c *Config) NetworkDelay() time.Duration {
	d, _ := ParseDurationField("senders.network_delay", c.Senders.NetworkDelay)
	return d
}

// BusyTimeout returns the parsed sqlite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	return d
}

// RetentionMaxAge returns the parsed retention age (0 = keep forever).
func (c *Config) RetentionMaxAge() time.Duration {
	d, _ := ParseDurationField("retention.max_age", c.Retention.MaxAge)
	return d
}
