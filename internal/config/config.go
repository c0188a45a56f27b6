package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/raine/listing-studio/internal/clipboard"
	"github.com/raine/listing-studio/internal/llm"
	"github.com/raine/listing-studio/internal/media"
)

const (
	AppName     = "listing-studio"
	EnvFileName = "config.env"
)

// Defaults for optional settings.
const (
	DefaultAddr     = "127.0.0.1:8080"
	DefaultDBPath   = "listing-studio.db"
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// RequiredEnvVars lists the variables that must be set for the tool to run.
var RequiredEnvVars = []string{"GEMINI_API_KEY"}

// Config holds the runtime settings read from the environment.
type Config struct {
	GeminiAPIKey string
	GeminiModel  string

	Addr string
	// DBPath is the SQLite cache and history file. Empty disables both.
	DBPath   string
	RedisURL string
	CacheTTL time.Duration

	ImageMaxBytes     int64
	ImageFetchTimeout time.Duration
	CopyFeedbackDelay time.Duration
}

// LookupFunc reads one variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ConfigDir returns the application's config directory, creating it when
// missing.
func ConfigDir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// ConfigFilePath returns the full path to the env file written by the
// setup wizard.
func ConfigFilePath() (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads variables from ./.env and then from the user config
// file. Variables already set in the environment win. Errors are ignored
// since neither file has to exist.
func LoadEnvFile() {
	_ = godotenv.Load()

	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
}

// MissingRequired returns the names of required variables that are unset.
func MissingRequired() []string {
	var missing []string
	for _, v := range RequiredEnvVars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		GeminiAPIKey: get("GEMINI_API_KEY", ""),
		GeminiModel:  get("GEMINI_MODEL", llm.DefaultModel),
		Addr:         get("LISTING_ADDR", DefaultAddr),
		DBPath:       DefaultDBPath,
		RedisURL:     get("REDIS_URL", ""),
	}

	// An explicitly empty LISTING_DB_PATH turns the SQLite store off
	if v, ok := lookup("LISTING_DB_PATH"); ok {
		cfg.DBPath = strings.TrimSpace(v)
	}

	var err error
	if cfg.CacheTTL, err = parseDuration(get("LISTING_CACHE_TTL", ""), DefaultCacheTTL); err != nil {
		return nil, fmt.Errorf("LISTING_CACHE_TTL: %w", err)
	}
	if cfg.ImageFetchTimeout, err = parseDuration(get("IMAGE_FETCH_TIMEOUT", ""), 0); err != nil {
		return nil, fmt.Errorf("IMAGE_FETCH_TIMEOUT: %w", err)
	}
	if cfg.CopyFeedbackDelay, err = parseDuration(get("COPY_FEEDBACK_DELAY", ""), clipboard.DefaultFeedbackDelay); err != nil {
		return nil, fmt.Errorf("COPY_FEEDBACK_DELAY: %w", err)
	}

	cfg.ImageMaxBytes = media.DefaultMaxImageSize
	if v := get("IMAGE_MAX_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("IMAGE_MAX_BYTES must be a positive integer, got %q", v)
		}
		cfg.ImageMaxBytes = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.Addr == "" {
		return fmt.Errorf("LISTING_ADDR is empty")
	}
	return nil
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", v)
	}
	return d, nil
}
