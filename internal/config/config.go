package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config keeps runtime settings for the API server.
type Config struct {
	HTTPAddr         string        `yaml:"http_addr"`
	DatabaseURL      string        `yaml:"database_url"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	LogLevel         string        `yaml:"log_level"`
	TelegramToken    string        `yaml:"telegram_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		DatabaseURL:      "task_manager.db",
		TokenTTL:         24 * time.Hour,
		BcryptCost:       10,
		ReminderInterval: time.Minute,
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// environment variables and finally command-line flags, each layer
// overriding the previous one.
func Load(args []string) (Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("taskmanager", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file (env TASKMANAGER_CONFIG)")
	addr := fs.String("http-addr", "", "listen address (env HTTP_ADDR)")
	dsn := fs.String("database-url", "", "SQLite database path (env DATABASE_URL)")
	ttl := fs.Duration("token-ttl", 0, "token lifetime (env TOKEN_TTL)")
	interval := fs.Duration("reminder-interval", 0, "reminder dispatch interval, 0 disables (env REMINDER_INTERVAL)")
	level := fs.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	path := *configPath
	if path == "" {
		path, _ = lookup("TASKMANAGER_CONFIG")
	}
	if path = strings.TrimSpace(path); path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}

	if fs.Changed("http-addr") {
		cfg.HTTPAddr = *addr
	}
	if fs.Changed("database-url") {
		cfg.DatabaseURL = *dsn
	}
	if fs.Changed("token-ttl") {
		cfg.TokenTTL = *ttl
	}
	if fs.Changed("reminder-interval") {
		cfg.ReminderInterval = *interval
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *level
	}

	return cfg, cfg.validate()
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HTTP_ADDR", &c.HTTPAddr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("JWT_SECRET", &c.JWTSecret)
	str("LOG_LEVEL", &c.LogLevel)
	str("TELEGRAM_TOKEN", &c.TelegramToken)

	if v, ok := lookup("TOKEN_TTL"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TOKEN_TTL: %w", err)
		}
		c.TokenTTL = d
	}
	if v, ok := lookup("REMINDER_INTERVAL"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("REMINDER_INTERVAL: %w", err)
		}
		c.ReminderInterval = d
	}
	if v, ok := lookup("BCRYPT_COST"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BCRYPT_COST: %w", err)
		}
		c.BcryptCost = n
	}
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.TelegramChatID = n
	}
	return nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.ReminderInterval < 0 {
		return fmt.Errorf("reminder interval must not be negative, got %s", c.ReminderInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel for slog.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// TelegramEnabled reports whether reminders should go to Telegram.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}
