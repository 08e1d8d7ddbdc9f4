// Package config loads server settings from defaults, an optional YAML
// file, an optional .env file and ARM_* environment variables, in that
// order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/report"
	"github.com/jizpi/arm-ledger/internal/stats"
	"github.com/jizpi/arm-ledger/internal/visit"
)

// DefaultFile is read when no --config flag is given and the file exists.
const DefaultFile = "arm.yaml"

// RedisConfig enables cross-instance change notices when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Config holds server configuration.
type Config struct {
	Addr             string            `yaml:"addr"`
	DatabaseURL      string            `yaml:"database_url"`
	Timezone         string            `yaml:"timezone"`
	HistogramDays    int               `yaml:"histogram_days"`
	RefreshInterval  time.Duration     `yaml:"refresh_interval"`
	Resources        []string          `yaml:"resources"`
	DevMode          bool              `yaml:"dev_mode"`
	LogLevel         string            `yaml:"log_level"`
	CORSOrigins      []string          `yaml:"cors_origins"`
	Redis            RedisConfig       `yaml:"redis"`
	SMTP             report.SMTPConfig `yaml:"smtp"`
	ReportRecipients []string          `yaml:"report_recipients"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:            ":8080",
		Timezone:        "Asia/Tashkent",
		HistogramDays:   stats.DefaultHistogramDays,
		RefreshInterval: time.Minute,
		Resources:       append([]string(nil), visit.DefaultResources...),
		LogLevel:        "info",
		Redis:           RedisConfig{Channel: feed.DefaultChannel},
		SMTP:            report.SMTPConfig{Port: "587"},
	}
}

// Load builds a Config. path may be empty, in which case DefaultFile is
// used if present. A missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Addr = envOrDefault("ARM_ADDR", c.Addr)
	c.DatabaseURL = envOrDefault("ARM_DATABASE_URL", c.DatabaseURL)
	c.Timezone = envOrDefault("ARM_TIMEZONE", c.Timezone)
	c.LogLevel = envOrDefault("ARM_LOG_LEVEL", c.LogLevel)
	c.Redis.Addr = envOrDefault("ARM_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOrDefault("ARM_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Channel = envOrDefault("ARM_REDIS_CHANNEL", c.Redis.Channel)
	c.SMTP.Host = envOrDefault("ARM_SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = envOrDefault("ARM_SMTP_PORT", c.SMTP.Port)
	c.SMTP.User = envOrDefault("ARM_SMTP_USER", c.SMTP.User)
	c.SMTP.Pass = envOrDefault("ARM_SMTP_PASS", c.SMTP.Pass)
	c.SMTP.From = envOrDefault("ARM_SMTP_FROM", c.SMTP.From)

	if v := os.Getenv("ARM_DEV_MODE"); v != "" {
		c.DevMode = v == "true"
	}
	if v := os.Getenv("ARM_HISTOGRAM_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARM_HISTOGRAM_DAYS: %w", err)
		}
		c.HistogramDays = n
	}
	if v := os.Getenv("ARM_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARM_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v := os.Getenv("ARM_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("ARM_REPORT_RECIPIENTS"); v != "" {
		c.ReportRecipients = splitList(v)
	}
	return nil
}

// Validate checks settings that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.HistogramDays <= 0 {
		return fmt.Errorf("histogram_days must be positive, got %d", c.HistogramDays)
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// StatsOptions returns the aggregation settings.
func (c Config) StatsOptions() stats.Options {
	return stats.Options{Catalog: c.Resources, Days: c.HistogramDays, Location: c.Location()}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
