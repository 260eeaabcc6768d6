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

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultAPIURL         = "http://127.0.0.1:7272/api/v1"
	DefaultServerAddr     = "127.0.0.1:7272"
	DefaultRequestTimeout = 8 * time.Second
)

// Config represents the application configuration
type Config struct {
	DBPath         string        `yaml:"db_path"`
	APIURL         string        `yaml:"api_url"`
	APIToken       string        `yaml:"api_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PushDebounce   time.Duration `yaml:"push_debounce"`
	FetchFailure   string        `yaml:"fetch_failure"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	Output         string        `yaml:"output"`

	ServerAddr  string  `yaml:"server_addr"`
	ServerToken string  `yaml:"server_token"`
	ServerRate  float64 `yaml:"server_rate"`
	ServerBurst int     `yaml:"server_burst"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/cartsync/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:         DefaultAPIURL,
		RequestTimeout: DefaultRequestTimeout,
		FetchFailure:   "abort",
		LogLevel:       "warn",
		LogFormat:      "text",
		Output:         "table",
		ServerAddr:     DefaultServerAddr,
		ServerBurst:    20,
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional; a malformed one is an error.
	if err := loadYAMLConfig(cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(homeDir, ".local", "share", "cartsync", "cartsync.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := getEnvOrFile("CARTSYNC_DB_PATH", "CARTSYNC_DB_PATH_FILE"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CARTSYNC_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := getEnvOrFile("CARTSYNC_API_TOKEN", "CARTSYNC_API_TOKEN_FILE"); v != "" {
		cfg.APIToken = v
	}
	if v := getEnvOrFile("CARTSYNC_SERVER_TOKEN", "CARTSYNC_SERVER_TOKEN_FILE"); v != "" {
		cfg.ServerToken = v
	}
	if v := os.Getenv("CARTSYNC_FETCH_FAILURE"); v != "" {
		cfg.FetchFailure = v
	}
	if v := os.Getenv("CARTSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CARTSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CARTSYNC_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("CARTSYNC_SERVER_ADDR"); v != "" {
		cfg.ServerAddr = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"CARTSYNC_REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"CARTSYNC_PUSH_DEBOUNCE", &cfg.PushDebounce},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	if v := os.Getenv("CARTSYNC_SERVER_RATE"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CARTSYNC_SERVER_RATE: %w", err)
		}
		cfg.ServerRate = parsed
	}
	if v := os.Getenv("CARTSYNC_SERVER_BURST"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CARTSYNC_SERVER_BURST: %w", err)
		}
		cfg.ServerBurst = parsed
	}
	return nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	switch c.FetchFailure {
	case "abort", "empty":
	default:
		return fmt.Errorf("invalid fetch_failure %q: must be one of: abort, empty", c.FetchFailure)
	}
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q: must be one of: table, json, yaml", c.Output)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request_timeout %s: must be positive", c.RequestTimeout)
	}
	if c.PushDebounce < 0 {
		return fmt.Errorf("invalid push_debounce %s: must not be negative", c.PushDebounce)
	}
	if c.ServerRate < 0 || c.ServerBurst < 0 {
		return fmt.Errorf("invalid server rate limit: must not be negative")
	}
	return nil
}

// loadYAMLConfig loads configuration from ~/.config/cartsync/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "cartsync", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
