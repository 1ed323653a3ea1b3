package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Remote modes.
const (
	RemoteOff       = "off"
	RemoteInProcess = "inprocess"
	RemoteHTTP      = "http"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL               string `yaml:"ttl"`
		Dir               string `yaml:"dir"`
		TotalChapters     int    `yaml:"totalChapters"`
		ImmediateFeedback *bool  `yaml:"immediateFeedback"`
		Timezone          string `yaml:"timezone"`
	} `yaml:"quiz"`
	Remote struct {
		Mode       string `yaml:"mode"`
		BaseURL    string `yaml:"baseURL"`
		AdminToken string `yaml:"adminToken"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"remote"`
	Reconcile struct {
		QueueSize int    `yaml:"queueSize"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"reconcile"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.defaults()
	return cfg, cfg.Validate()
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Postgres.URL, "POSTGRES_URL")
	setString(&cfg.Quiz.Dir, "QUIZ_DIR")
	setString(&cfg.Quiz.Timezone, "QUIZ_TIMEZONE")
	setString(&cfg.Remote.Mode, "REMOTE_MODE")
	setString(&cfg.Remote.BaseURL, "REMOTE_BASE_URL")
	setString(&cfg.Remote.AdminToken, "REMOTE_ADMIN_TOKEN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = v
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) defaults() {
	if c.Quiz.TotalChapters == 0 {
		c.Quiz.TotalChapters = 20
	}
	if c.Quiz.ImmediateFeedback == nil {
		on := true
		c.Quiz.ImmediateFeedback = &on
	}
	if c.Remote.Mode == "" {
		c.Remote.Mode = RemoteInProcess
	}
	if c.Reconcile.QueueSize == 0 {
		c.Reconcile.QueueSize = 64
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the values that cannot fall back to a default.
func (c Config) Validate() error {
	switch c.Remote.Mode {
	case RemoteOff, RemoteInProcess:
	case RemoteHTTP:
		if c.Remote.BaseURL == "" {
			return errors.New("remote.baseURL is required in http mode")
		}
	default:
		return fmt.Errorf("unknown remote.mode %q", c.Remote.Mode)
	}
	if c.Quiz.TotalChapters < 0 || c.Reconcile.QueueSize < 0 {
		return errors.New("quiz.totalChapters and reconcile.queueSize must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the calendar used for streak days.
func (c Config) Location() (*time.Location, error) {
	if c.Quiz.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Quiz.Timezone)
	if err != nil {
		return nil, fmt.Errorf("quiz.timezone: %w", err)
	}
	return loc, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
