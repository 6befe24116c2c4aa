// Package config loads ragscope settings: defaults, then an optional TOML
// file, then RAGSCOPE_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGSCOPE_"

// Duration is a time.Duration written as a string ("3s") in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Stream  StreamConfig  `toml:"stream"`
	UI      UIConfig      `toml:"ui"`
	History HistoryConfig `toml:"history"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

type StreamConfig struct {
	URL                  string   `toml:"url" validate:"required,url"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts" validate:"gte=1,lte=100"`
	ReconnectDelay       Duration `toml:"reconnect_delay" validate:"gt=0"`
}

type UIConfig struct {
	ResizeDebounce Duration `toml:"resize_debounce" validate:"gte=0"`
	PreviewLength  int      `toml:"preview_length" validate:"gte=1"`
	HistoryLimit   int      `toml:"history_limit" validate:"gte=1,lte=1000"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path" validate:"required_if=Enabled true"`
	MaxRuns int    `toml:"max_runs" validate:"gte=0"` // 0 keeps every run
}

type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
	File  string `toml:"file"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"` // empty disables /metrics
}

// DataDir is where ragscope keeps its history database and log file.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragscope"
	}
	return filepath.Join(home, ".ragscope")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		Stream: StreamConfig{
			URL:                  "http://localhost:8000/api/v1/pipeline/monitor",
			MaxReconnectAttempts: 5,
			ReconnectDelay:       Duration(3 * time.Second),
		},
		UI: UIConfig{
			ResizeDebounce: Duration(100 * time.Millisecond),
			PreviewLength:  50,
			HistoryLimit:   20,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "history.sqlite"),
			MaxRuns: 500,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "ragscope.log"),
		},
	}
}

// Load builds the configuration. An empty path falls back to
// RAGSCOPE_CONFIG; if that is empty too, only defaults and env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv(EnvPrefix + "STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_RECONNECT_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Stream.MaxReconnectAttempts = n
	}
	if v := os.Getenv(EnvPrefix + "RECONNECT_DELAY"); v != "" {
		if err := c.Stream.ReconnectDelay.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sRECONNECT_DELAY: %w", EnvPrefix, err)
		}
	}
	if v := os.Getenv(EnvPrefix + "HISTORY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY_ENABLED: %w", EnvPrefix, err)
		}
		c.History.Enabled = b
	}
	if v := os.Getenv(EnvPrefix + "HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	return nil
}
