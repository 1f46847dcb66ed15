package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the bootstrap configuration for the service. Runtime
// settings (scan interval, regions, thresholds, notification policy) live
// in the preference store and are only seeded from here on first run.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Telegram TelegramConfig `yaml:"telegram"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Email    EmailConfig    `yaml:"email"`
}

// DatabaseConfig selects the store backend. Driver is "sqlite" or
// "postgres"; Path is the SQLite file, URL the Postgres DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ScraperConfig points the client at the marketplace origin.
type ScraperConfig struct {
	BaseURL         string `yaml:"base_url"`
	CredentialsPath string `yaml:"credentials_path"`
}

// TelegramConfig configures the push notification channel. An empty token
// disables the channel.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// MonitorConfig seeds the orchestrator preferences on first run.
type MonitorConfig struct {
	ScanIntervalSeconds int     `yaml:"scan_interval_seconds"`
	Regions             string  `yaml:"regions"`
	DealThreshold       float64 `yaml:"deal_threshold"`
}

// EmailConfig seeds the email channel preferences on first run.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./gridwatch.db",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxAgeDays: 7,
		},
		Scraper: ScraperConfig{
			BaseURL:         "https://modulargrid.net",
			CredentialsPath: "./credentials.json",
		},
		Monitor: MonitorConfig{
			ScanIntervalSeconds: 3600,
			Regions:             "All",
			DealThreshold:       15.0,
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
	}
}

// Load reads the YAML file at path when it exists and applies environment
// overrides on top. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.URL == "" {
		return nil, fmt.Errorf("postgres driver requires a database URL")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.Path, "DATABASE_PATH")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Log.Output, "LOG_OUTPUT")
	setString(&c.Scraper.BaseURL, "MARKETPLACE_BASE_URL")
	setString(&c.Scraper.CredentialsPath, "CREDENTIALS_PATH")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setInt64(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setInt(&c.Monitor.ScanIntervalSeconds, "SCAN_INTERVAL_SECONDS")
	setString(&c.Monitor.Regions, "SCAN_REGIONS")
	setFloat(&c.Monitor.DealThreshold, "DEAL_THRESHOLD")
	setString(&c.Email.SMTPHost, "SMTP_HOST")
	setInt(&c.Email.SMTPPort, "SMTP_PORT")
	setString(&c.Email.Username, "SMTP_USERNAME")
	setString(&c.Email.Password, "SMTP_PASSWORD")
	setString(&c.Email.From, "EMAIL_FROM")
	setString(&c.Email.To, "EMAIL_TO")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}
