// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Platform string         `yaml:"platform"`
	Managers []int64        `yaml:"managers"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	Sessions SessionsConfig `yaml:"sessions"`
	Slack    SlackConfig    `yaml:"slack"`
	Admin    AdminConfig    `yaml:"admin"`
	Digest   DigestConfig   `yaml:"digest"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	TokenEnv       string  `yaml:"token_env"`
	PollTimeoutSec int     `yaml:"poll_timeout_sec"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
}

// DiscordConfig holds Discord gateway settings.
type DiscordConfig struct {
	TokenEnv string `yaml:"token_env"`
}

// DatabaseConfig selects and locates the record store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`

	// PasswordEnv names the env var holding the MySQL password.
	PasswordEnv string `yaml:"password_env"`
}

// SessionsConfig selects where per-user dialog state lives.
type SessionsConfig struct {
	Backend  string `yaml:"backend"` // "memory" or "redis"
	RedisURL string `yaml:"redis_url"`
	TTLHours int    `yaml:"ttl_hours"`
}

// SlackConfig enables mirroring manager escalations to a Slack webhook.
type SlackConfig struct {
	WebhookURLEnv string `yaml:"webhook_url_env"`
}

// AdminConfig controls the read-only admin API. Port 0 disables it.
type AdminConfig struct {
	Port int `yaml:"port"`
}

// DigestConfig schedules the periodic manager digest. Empty cron disables it.
type DigestConfig struct {
	Cron        string `yaml:"cron"`
	WindowHours int    `yaml:"window_hours"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, if present, is loaded into the process
// environment first so that *_env references can resolve.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "telegram"
	}
	if c.Telegram.TokenEnv == "" {
		c.Telegram.TokenEnv = "TELEGRAM_BOT_TOKEN"
	}
	if c.Telegram.PollTimeoutSec == 0 {
		c.Telegram.PollTimeoutSec = 30
	}
	if c.Telegram.RatePerSec == 0 {
		c.Telegram.RatePerSec = 25
	}
	if c.Discord.TokenEnv == "" {
		c.Discord.TokenEnv = "DISCORD_BOT_TOKEN"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "switchboard.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "switchboard"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.TTLHours == 0 {
		c.Sessions.TTLHours = 24
	}
	if c.Digest.WindowHours == 0 {
		c.Digest.WindowHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "telegram", "discord":
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (telegram, discord)", c.Platform))
	}
	if len(c.Managers) == 0 {
		errs = append(errs, "at least one manager id is required")
	}
	for i, id := range c.Managers {
		if id <= 0 {
			errs = append(errs, fmt.Sprintf("managers[%d] must be a positive id", i))
		}
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.RedisURL == "" {
			errs = append(errs, "sessions.redis_url is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("sessions.backend %q is not supported (memory, redis)", c.Sessions.Backend))
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		errs = append(errs, "admin.port must be between 0 and 65535")
	}
	if c.Telegram.RatePerSec < 0 {
		errs = append(errs, "telegram.rate_per_sec must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PlatformToken resolves the bot token for the configured platform from the
// environment.
func (c *Config) PlatformToken() (string, error) {
	env := c.Telegram.TokenEnv
	if c.Platform == "discord" {
		env = c.Discord.TokenEnv
	}
	token := strings.TrimSpace(os.Getenv(env))
	if token == "" {
		return "", fmt.Errorf("config: %s bot token not set (env %s)", c.Platform, env)
	}
	return token, nil
}

// Password resolves the database password, or "" when none is configured.
func (d DatabaseConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// SlackWebhookURL returns the Slack webhook URL, or "" when mirroring is off.
func (c *Config) SlackWebhookURL() string {
	if c.Slack.WebhookURLEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Slack.WebhookURLEnv))
}
