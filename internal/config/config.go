package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the digest maker.
type Config struct {
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`
	RecipientEmail string `yaml:"recipient_email" env:"RECIPIENT_EMAIL"`

	Slack    SlackConfig    `yaml:"slack"`
	Gmail    GmailConfig    `yaml:"gmail"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Telegram TelegramConfig `yaml:"telegram"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Pushover PushoverConfig `yaml:"pushover"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Collect  CollectConfig  `yaml:"collect"`
	Server   ServerConfig   `yaml:"server"`
}

type SlackConfig struct {
	Enabled       bool   `yaml:"enabled" env:"SLACK_ENABLED"`
	BotToken      string `yaml:"bot_token" env:"SLACK_BOT_TOKEN"`
	LookbackHours int    `yaml:"lookback_hours" env:"SLACK_LOOKBACK_HOURS"`
}

type GmailConfig struct {
	Enabled         bool   `yaml:"enabled" env:"GMAIL_ENABLED"`
	CredentialsPath string `yaml:"credentials_path" env:"GMAIL_CREDENTIALS_PATH"`
	TokenPath       string `yaml:"token_path" env:"GMAIL_TOKEN_PATH"`
	Query           string `yaml:"query" env:"GMAIL_QUERY"`
	MaxResults      int64  `yaml:"max_results" env:"GMAIL_MAX_RESULTS"`
}

// WhatsAppConfig toggles the placeholder WhatsApp source.
type WhatsAppConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLE_WHATSAPP_PLACEHOLDER"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled" env:"TELEGRAM_ENABLED"`
	AppID      int    `yaml:"app_id" env:"TELEGRAM_APP_ID"`
	AppHash    string `yaml:"app_hash" env:"TELEGRAM_APP_HASH"`
	Phone      string `yaml:"phone" env:"TELEGRAM_PHONE"`
	DataPath   string `yaml:"data_path" env:"TELEGRAM_DATA_PATH"`
	MaxDialogs int    `yaml:"max_dialogs" env:"TELEGRAM_MAX_DIALOGS"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
	UseTLS   bool   `yaml:"use_tls" env:"SMTP_USE_TLS"` // STARTTLS when true, implicit TLS otherwise
}

type PushoverConfig struct {
	Enabled   bool   `yaml:"enabled" env:"PUSHOVER_ENABLED"`
	AppToken  string `yaml:"app_token" env:"PUSHOVER_APP_TOKEN"`
	UserToken string `yaml:"user_token" env:"PUSHOVER_USER_TOKEN"`
}

type ScheduleConfig struct {
	Time string `yaml:"time" env:"SCHEDULE_TIME"` // HH:MM, local time
	Cron string `yaml:"cron" env:"SCHEDULE_CRON"` // overrides Time when set
}

type CollectConfig struct {
	Parallel       bool `yaml:"parallel" env:"COLLECT_PARALLEL"`
	TimeoutSeconds int  `yaml:"timeout_seconds" env:"COLLECT_TIMEOUT_SECONDS"`
}

// Timeout is the per-collector deadline.
func (c CollectConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled" env:"SERVER_ENABLED"`
	Port    int  `yaml:"port" env:"SERVER_PORT"`
}

// Load reads configuration from a YAML file on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Slack: SlackConfig{
			Enabled:       true,
			LookbackHours: 24,
		},
		Gmail: GmailConfig{
			Enabled:         true,
			CredentialsPath: "credentials/gmail_credentials.json",
			TokenPath:       "credentials/gmail_token.json",
			Query:           "is:unread in:inbox",
			MaxResults:      50,
		},
		Telegram: TelegramConfig{
			DataPath:   "./data/telegram",
			MaxDialogs: 50,
		},
		SMTP: SMTPConfig{
			Host:   "smtp.gmail.com",
			Port:   587,
			UseTLS: true,
		},
		Schedule: ScheduleConfig{
			Time: "20:00",
		},
		Collect: CollectConfig{
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Validate checks that the settings needed for a run are present. Delivery
// settings are only checked when requireSMTP is set.
func (c *Config) Validate(requireSMTP bool) error {
	var errs []error

	if requireSMTP {
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required"))
		}
		if c.SMTP.Username == "" {
			errs = append(errs, errors.New("SMTP_USERNAME is required"))
		}
		if c.SMTP.Password == "" {
			errs = append(errs, errors.New("SMTP_PASSWORD is required"))
		}
		if c.RecipientEmail == "" {
			errs = append(errs, errors.New("RECIPIENT_EMAIL is required"))
		}
	}

	if c.Telegram.Enabled && (c.Telegram.AppID == 0 || c.Telegram.AppHash == "") {
		errs = append(errs, errors.New("telegram app_id and app_hash are required when telegram is enabled"))
	}
	if c.Pushover.Enabled && (c.Pushover.AppToken == "" || c.Pushover.UserToken == "") {
		errs = append(errs, errors.New("pushover app_token and user_token are required when pushover is enabled"))
	}
	if c.Collect.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("collect.timeout_seconds must not be negative"))
	}
	if _, err := c.Schedule.Spec(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Spec returns the cron expression for the daily run.
func (s ScheduleConfig) Spec() (string, error) {
	if spec := strings.TrimSpace(s.Cron); spec != "" {
		return spec, nil
	}

	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return "", fmt.Errorf("invalid schedule time %q: expected HH:MM", s.Time)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
