// File path: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config carries the service-wide settings for the API server and the
// auto-save defaults handed to intake clients.
type Config struct {
	Addr         string `toml:"addr"`
	DatabasePath string `toml:"database_path"`
	CookieName   string `toml:"cookie_name"`

	MaxOpenConns int `toml:"max_open_conns"`
	MaxIdleConns int `toml:"max_idle_conns"`

	BusyTimeout       time.Duration `toml:"-"`
	BusyTimeoutString string        `toml:"busy_timeout"`

	AutoSaveDebounce       time.Duration `toml:"-"`
	AutoSaveDebounceString string        `toml:"autosave_debounce"`
	AutoSaveMaxRetries     int           `toml:"autosave_max_retries"`

	RequestTimeout       time.Duration `toml:"-"`
	RequestTimeoutString string        `toml:"request_timeout"`
}

// Merge overlays non-zero fields from the override onto the base config.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Addr) != "" {
		result.Addr = strings.TrimSpace(override.Addr)
	}
	if strings.TrimSpace(override.DatabasePath) != "" {
		result.DatabasePath = strings.TrimSpace(override.DatabasePath)
	}
	if strings.TrimSpace(override.CookieName) != "" {
		result.CookieName = strings.TrimSpace(override.CookieName)
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	if strings.TrimSpace(override.BusyTimeoutString) != "" {
		result.BusyTimeoutString = strings.TrimSpace(override.BusyTimeoutString)
	}
	if override.AutoSaveDebounce > 0 {
		result.AutoSaveDebounce = override.AutoSaveDebounce
	}
	if strings.TrimSpace(override.AutoSaveDebounceString) != "" {
		result.AutoSaveDebounceString = strings.TrimSpace(override.AutoSaveDebounceString)
	}
	if override.AutoSaveMaxRetries > 0 {
		result.AutoSaveMaxRetries = override.AutoSaveMaxRetries
	}
	if override.RequestTimeout > 0 {
		result.RequestTimeout = override.RequestTimeout
	}
	if strings.TrimSpace(override.RequestTimeoutString) != "" {
		result.RequestTimeoutString = strings.TrimSpace(override.RequestTimeoutString)
	}
	return result
}

// Load assembles the configuration from an optional TOML file (path argument
// or CONSULTFLOW_CONFIG_FILE) overlaid with environment variables.
func Load(path string) (Config, error) {
	cfg := Config{}
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = strings.TrimSpace(os.Getenv("CONSULTFLOW_CONFIG_FILE"))
	}
	if resolved != "" {
		fileCfg, err := loadFile(resolved)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8084"
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		c.DatabasePath = filepath.Join("data", "consultflow.db")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		c.CookieName = "cf_session"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	c.BusyTimeout = durationOrDefault(c.BusyTimeout, c.BusyTimeoutString, 5*time.Second)
	c.AutoSaveDebounce = durationOrDefault(c.AutoSaveDebounce, c.AutoSaveDebounceString, 2*time.Second)
	if c.AutoSaveMaxRetries <= 0 {
		c.AutoSaveMaxRetries = 3
	}
	c.RequestTimeout = durationOrDefault(c.RequestTimeout, c.RequestTimeoutString, 10*time.Second)
}

func durationOrDefault(current time.Duration, raw string, fallback time.Duration) time.Duration {
	if current > 0 {
		return current
	}
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := time.ParseDuration(trimmed); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func loadEnv() (Config, error) {
	cfg := Config{}
	if addr := strings.TrimSpace(os.Getenv("CONSULTFLOW_ADDR")); addr != "" {
		cfg.Addr = addr
	}
	if path := strings.TrimSpace(os.Getenv("CONSULTFLOW_DB_PATH")); path != "" {
		cfg.DatabasePath = path
	}
	if name := strings.TrimSpace(os.Getenv("CONSULTFLOW_COOKIE_NAME")); name != "" {
		cfg.CookieName = name
	}
	if open := strings.TrimSpace(os.Getenv("CONSULTFLOW_MAX_OPEN_CONNS")); open != "" {
		value, err := strconv.Atoi(open)
		if err != nil {
			return Config{}, fmt.Errorf("parse CONSULTFLOW_MAX_OPEN_CONNS: %w", err)
		}
		if value > 0 {
			cfg.MaxOpenConns = value
		}
	}
	if idle := strings.TrimSpace(os.Getenv("CONSULTFLOW_MAX_IDLE_CONNS")); idle != "" {
		value, err := strconv.Atoi(idle)
		if err != nil {
			return Config{}, fmt.Errorf("parse CONSULTFLOW_MAX_IDLE_CONNS: %w", err)
		}
		if value > 0 {
			cfg.MaxIdleConns = value
		}
	}
	if busy := strings.TrimSpace(os.Getenv("CONSULTFLOW_BUSY_TIMEOUT")); busy != "" {
		cfg.BusyTimeoutString = busy
	}
	if debounce := strings.TrimSpace(os.Getenv("CONSULTFLOW_AUTOSAVE_DEBOUNCE")); debounce != "" {
		cfg.AutoSaveDebounceString = debounce
	}
	if retries := strings.TrimSpace(os.Getenv("CONSULTFLOW_AUTOSAVE_MAX_RETRIES")); retries != "" {
		value, err := strconv.Atoi(retries)
		if err != nil {
			return Config{}, fmt.Errorf("parse CONSULTFLOW_AUTOSAVE_MAX_RETRIES: %w", err)
		}
		if value > 0 {
			cfg.AutoSaveMaxRetries = value
		}
	}
	if timeout := strings.TrimSpace(os.Getenv("CONSULTFLOW_REQUEST_TIMEOUT")); timeout != "" {
		cfg.RequestTimeoutString = timeout
	}
	return cfg, nil
}
