package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the on-disk configuration. JSON and YAML are both accepted;
// YAML is normalized to JSON so a single strict decoder covers both.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// OperatorID is the Telegram user id of the single designated operator.
	// Required: without it no identity can ever be approved.
	OperatorID int64 `json:"operator_id"`

	// PollTimeout is a Go duration string for the long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// File enables an additional JSON log sink when non-empty.
	File string `json:"file,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type SchedulerConfig struct {
	// PollInterval is how often the job queue is polled for due jobs.
	PollInterval string `json:"poll_interval,omitempty"`
}

// MetricsConfig controls the optional prometheus endpoint.
// Prefer binding to localhost.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
}

const (
	DefaultPollTimeout  = 10 * time.Second
	DefaultPollInterval = 60 * time.Second
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMetricsAddr  = "127.0.0.1:9090"
)

// Load reads, decodes and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config bytes strictly: unknown fields and trailing data
// (e.g. concatenated JSON documents) are rejected. A .yaml/.yml path is
// re-encoded as JSON first so one strict decoder covers both formats.
func Parse(path string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		jb, err := json.Marshal(jsonSafe(doc))
		if err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		data = jb
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// jsonSafe forces map keys to strings; yaml can yield map[any]any, which
// json.Marshal rejects.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = jsonSafe(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = jsonSafe(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = jsonSafe(val)
		}
		return x
	}
	return v
}

// Validate checks required fields and duration syntax.
// A missing operator id is a startup error, not a degraded mode: a gate
// without an operator would strand every discovered identity in pending.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.OperatorID == 0 {
		return errors.New("telegram.operator_id is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, DefaultPollInterval); err != nil {
		return err
	}
	return nil
}

// PollTimeout returns the parsed telegram long-poll timeout.
// Validate must have been called.
func (c *Config) PollTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	return d
}

func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout)
	return d
}

func (c *Config) PollInterval() time.Duration {
	d, _ := ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, DefaultPollInterval)
	return d
}

func (c *Config) MetricsAddr() string {
	if strings.TrimSpace(c.Metrics.Addr) == "" {
		return DefaultMetricsAddr
	}
	return c.Metrics.Addr
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
