// Package config loads server configuration from an optional YAML file and
// RECURRENCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warp/recurrence-engine/logging"
	"github.com/warp/recurrence-engine/recurrence"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECURRENCE_"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config is the top-level application configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	// Store selects the TemplateStore backend: "sqlite" (default) or "memory".
	Store string `yaml:"store"`

	// DBPath is the SQLite database file. ":memory:" keeps everything in RAM.
	DBPath string `yaml:"db_path"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	// MalformedPolicy decides what range queries do with templates missing
	// their recurrence field: "skip" or "reject".
	MalformedPolicy string `yaml:"malformed_policy"`

	// MaxRangeDays rejects wider query windows. 0 disables the check.
	MaxRangeDays int `yaml:"max_range_days"`

	// ScopeConcurrency bounds the multi-scope occurrence fan-out.
	ScopeConcurrency int `yaml:"scope_concurrency"`

	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RequestTimeout bounds every API request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:             "8080",
		Store:            StoreSQLite,
		DBPath:           "./data/recurrence.db",
		LogLevel:         "info",
		LogFormat:        string(logging.FormatText),
		MalformedPolicy:  string(recurrence.MalformedSkip),
		MaxRangeDays:     3660,
		ScopeConcurrency: recurrence.DefaultScopeConcurrency,
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		RequestTimeout:   30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides, then Normalize.
// Validation is left to the caller.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from RECURRENCE_* variables. Unparseable numbers
// and durations keep the current value.
func (c *Config) ApplyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Store = getEnv("STORE", c.Store)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.MalformedPolicy = getEnv("MALFORMED_POLICY", c.MalformedPolicy)
	c.MaxRangeDays = getEnvInt("MAX_RANGE_DAYS", c.MaxRangeDays)
	c.ScopeConcurrency = getEnvInt("SCOPE_CONCURRENCY", c.ScopeConcurrency)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Port == "" {
		c.Port = d.Port
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = d.Store
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	c.MalformedPolicy = strings.ToLower(strings.TrimSpace(c.MalformedPolicy))
	if c.MalformedPolicy == "" {
		c.MalformedPolicy = d.MalformedPolicy
	}
	if c.ScopeConcurrency == 0 {
		c.ScopeConcurrency = d.ScopeConcurrency
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = d.AllowedOrigins
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite store")
		} else if c.DBPath != ":memory:" {
			dir := filepath.Dir(c.DBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid store '%s': must be one of [%s %s]", c.Store, StoreSQLite, StoreMemory))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch logging.Format(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !recurrence.MalformedPolicy(c.MalformedPolicy).Valid() {
		problems = append(problems, fmt.Sprintf("invalid malformed policy '%s': must be skip or reject", c.MalformedPolicy))
	}
	if c.MaxRangeDays < 0 {
		problems = append(problems, fmt.Sprintf("invalid max range days %d: must be >= 0", c.MaxRangeDays))
	}
	if c.ScopeConcurrency < 1 || c.ScopeConcurrency > 64 {
		problems = append(problems, fmt.Sprintf("invalid scope concurrency %d: must be between 1 and 64", c.ScopeConcurrency))
	}
	if c.RequestTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.ShutdownTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
