package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Telegram struct {
		Token string `yaml:"token"`
		// Mode is "polling", "webhook" or "off".
		Mode        string `yaml:"mode"`
		WebhookURL  string `yaml:"webhook_url"`
		WebhookPath string `yaml:"webhook_path"`
		PollTimeout int    `yaml:"poll_timeout"`
		Workers     int    `yaml:"workers"`
	} `yaml:"telegram"`
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
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Sessions struct {
		TTL           string `yaml:"ttl"`
		EvictInterval string `yaml:"evict_interval"`
	} `yaml:"sessions"`
	Teachers struct {
		OpenRegistration *bool   `yaml:"open_registration"`
		Allowlist        []int64 `yaml:"allowlist"`
	} `yaml:"teachers"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path, then applies environment overrides.
// A .env file next to the working directory is loaded first when present.
// A missing config file is not an error; the environment alone may configure the bot.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TELEGRAM_BOT_TOKEN"); ok {
		c.Telegram.Token = v
	}
	if v, ok := lookup("TELEGRAM_MODE"); ok {
		c.Telegram.Mode = v
	}
	if v, ok := lookup("WEBHOOK_URL"); ok {
		c.Telegram.WebhookURL = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.Postgres.URL = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("PORT"); ok {
		c.Server.Port = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("TEACHER_IDS"); ok {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("TEACHER_IDS: %w", err)
		}
		c.Teachers.Allowlist = ids
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "polling"
	}
	if c.Telegram.WebhookPath == "" {
		c.Telegram.WebhookPath = "/telegram/webhook"
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = 60
	}
	if c.Telegram.Workers <= 0 {
		c.Telegram.Workers = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// OpenRegistration reports whether any user may register as a teacher. It
// defaults to true when unset.
func (c Config) OpenRegistration() bool {
	return c.Teachers.OpenRegistration == nil || *c.Teachers.OpenRegistration
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

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
