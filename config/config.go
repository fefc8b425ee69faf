// Package config loads application settings from .env, an optional YAML file
// and the process environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Cache backends
const (
	CacheBackendFile   = "file"
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// Config holds all runtime settings
type Config struct {
	JellyfinURL     string        `yaml:"jellyfin_url"`
	APIKey          string        `yaml:"api_key"`
	Port            int           `yaml:"port"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`

	CacheBackend string `yaml:"cache_backend"`
	CacheFile    string `yaml:"cache_file"`
	DatabasePath string `yaml:"database_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`

	RefreshSchedule  string        `yaml:"refresh_schedule"`
	WarmOnStart      bool          `yaml:"warm_on_start"`
	RefreshRateLimit int           `yaml:"refresh_rate_limit"`
	EventRetention   time.Duration `yaml:"event_retention"`

	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns a config populated with defaults
func Default() Config {
	return Config{
		Port:             5000,
		CacheBackend:     CacheBackendFile,
		CacheFile:        "media_cache.json",
		DatabasePath:     "media.db",
		RedisKey:         "mediaanalyzer:media",
		RefreshRateLimit: 10,
		EventRetention:   30 * 24 * time.Hour,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load builds the configuration. Values from .env are loaded into the
// environment first, then the YAML file named by CONFIG_FILE is applied, and
// finally environment variables override both.
// The returned warnings are non-fatal problems such as a missing .env file.
func Load() (Config, []string, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, fmt.Sprintf("could not load .env file: %v", err))
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, warnings, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, warnings, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, warnings, err
	}
	return cfg, warnings, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.JellyfinURL, "JELLYFIN_URL")
	setString(&cfg.APIKey, "JELLYFIN_API_KEY")
	setString(&cfg.CacheBackend, "CACHE_BACKEND")
	setString(&cfg.CacheFile, "CACHE_FILE")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.RedisKey, "REDIS_KEY")
	setString(&cfg.RefreshSchedule, "REFRESH_SCHEDULE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	if err := setInt(&cfg.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.RedisDB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.RefreshRateLimit, "REFRESH_RATE_LIMIT"); err != nil {
		return err
	}

	if v := os.Getenv("WARM_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid WARM_ON_START %q: %w", v, err)
		}
		cfg.WarmOnStart = b
	}

	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid UPSTREAM_TIMEOUT %q: %w", v, err)
		}
		cfg.UpstreamTimeout = d
	}

	if v := os.Getenv("EVENT_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid EVENT_RETENTION %q: %w", v, err)
		}
		cfg.EventRetention = d
	}
	return nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if strings.TrimSpace(c.JellyfinURL) == "" {
		return fmt.Errorf("JELLYFIN_URL is required")
	}
	u, err := url.Parse(c.JellyfinURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("JELLYFIN_URL %q is not an absolute URL", c.JellyfinURL)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("JELLYFIN_API_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must not be negative")
	}
	if c.RefreshRateLimit < 0 {
		return fmt.Errorf("REFRESH_RATE_LIMIT must not be negative")
	}
	if c.EventRetention < 0 {
		return fmt.Errorf("EVENT_RETENTION must not be negative")
	}

	switch c.CacheBackend {
	case CacheBackendFile:
		if c.CacheFile == "" {
			return fmt.Errorf("CACHE_FILE is required for the file cache backend")
		}
	case CacheBackendMemory:
	case CacheBackendSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite cache backend")
		}
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", c.RefreshSchedule, err)
		}
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
