package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
// Values are resolved from built-in defaults, then an optional YAML file,
// then a .env file and finally the process environment.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Recipient store
	DatabaseURL    string `yaml:"database_url"`
	DBMaxConns     int32  `yaml:"db_max_conns"`
	DBMinConns     int32  `yaml:"db_min_conns"`
	DBCloseRetries int    `yaml:"db_close_retries"`

	// Mail transport
	SMTPHost          string        `yaml:"smtp_host"`
	SMTPPort          int           `yaml:"smtp_port"`
	SMTPUser          string        `yaml:"smtp_user"`
	SMTPPassword      string        `yaml:"smtp_password"`
	SMTPTimeout       time.Duration `yaml:"smtp_timeout"`
	SMTPTLSMinVersion string        `yaml:"smtp_tls_min_version"`
	SenderEmail       string        `yaml:"sender_email"`
	Subject           string        `yaml:"subject"`
	MessageID         string        `yaml:"message_id"`

	// Digest content
	TemplatePath   string `yaml:"template_path"`
	UnsubscribeURL string `yaml:"unsubscribe_url"`

	// Ranking API
	RankingURL       string        `yaml:"ranking_url"`
	ItemBaseURL      string        `yaml:"item_base_url"`
	ItemPageURL      string        `yaml:"item_page_url"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`

	// Scheduled mode; an empty schedule means run once and exit.
	Schedule        string        `yaml:"schedule"`
	HTTPPort        string        `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	PushgatewayURL string `yaml:"pushgateway_url"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogLevel: "info",

		DatabaseURL:    "./newsletter.sqlite",
		DBMaxConns:     4,
		DBMinConns:     1,
		DBCloseRetries: 5,

		SMTPHost:          "localhost",
		SMTPPort:          587,
		SMTPTimeout:       30 * time.Second,
		SMTPTLSMinVersion: "1.2",
		Subject:           "Your Hacker News digest",
		MessageID:         "id-00",

		TemplatePath:   "./message.html",
		UnsubscribeURL: "localhost/unsubscribe/?email=",

		RankingURL:       "https://hacker-news.firebaseio.com/v0/topstories.json",
		ItemBaseURL:      "https://hacker-news.firebaseio.com/v0/item/",
		ItemPageURL:      "https://news.ycombinator.com/item?id=",
		HTTPTimeout:      10 * time.Second,
		FetchConcurrency: 8,

		HTTPPort:        "8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load resolves the configuration and validates it.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()
	if err := cfg.loadFile(getEnv("CONFIG_FILE", "./newsletter.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DBMaxConns = int32(getInt("DB_MAX_CONNS", int(c.DBMaxConns)))
	c.DBMinConns = int32(getInt("DB_MIN_CONNS", int(c.DBMinConns)))
	c.DBCloseRetries = getInt("DB_CLOSE_RETRIES", c.DBCloseRetries)

	c.SMTPHost = getEnv("SMTP_HOST", c.SMTPHost)
	c.SMTPPort = getInt("SMTP_PORT", c.SMTPPort)
	c.SMTPUser = getEnv("SMTP_USER", c.SMTPUser)
	c.SMTPPassword = getEnv("SMTP_PASSWORD", c.SMTPPassword)
	c.SMTPTimeout = getDuration("SMTP_TIMEOUT", c.SMTPTimeout)
	c.SMTPTLSMinVersion = getEnv("SMTP_TLS_MIN_VERSION", c.SMTPTLSMinVersion)
	c.SenderEmail = getEnv("SENDER_EMAIL", c.SenderEmail)
	c.Subject = getEnv("DIGEST_SUBJECT", c.Subject)
	c.MessageID = getEnv("MESSAGE_ID", c.MessageID)

	c.TemplatePath = getEnv("TEMPLATE_PATH", c.TemplatePath)
	c.UnsubscribeURL = getEnv("UNSUBSCRIBE_URL", c.UnsubscribeURL)

	c.RankingURL = getEnv("RANKING_URL", c.RankingURL)
	c.ItemBaseURL = getEnv("ITEM_BASE_URL", c.ItemBaseURL)
	c.ItemPageURL = getEnv("ITEM_PAGE_URL", c.ItemPageURL)
	c.HTTPTimeout = getDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.FetchConcurrency = getInt("FETCH_CONCURRENCY", c.FetchConcurrency)

	c.Schedule = getEnv("DIGEST_SCHEDULE", c.Schedule)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.ReadTimeout = getDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.PushgatewayURL = getEnv("PUSHGATEWAY_URL", c.PushgatewayURL)

	// Mail goes out from the login account unless told otherwise.
	if c.SenderEmail == "" {
		c.SenderEmail = c.SMTPUser
	}
}

// Validate rejects settings no run could succeed with. Address syntax of
// the sender is checked by the pipeline so the failure is logged as part
// of a run.
func (c *Config) Validate() error {
	if _, err := c.TLSMinVersion(); err != nil {
		return err
	}
	if c.SMTPUser == "" {
		return errors.New("SMTP_USER is required")
	}
	if c.SMTPPort <= 0 {
		return fmt.Errorf("SMTP_PORT must be positive, got %d", c.SMTPPort)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", c.FetchConcurrency)
	}
	if c.DBCloseRetries < 1 {
		return fmt.Errorf("DB_CLOSE_RETRIES must be at least 1, got %d", c.DBCloseRetries)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid DIGEST_SCHEDULE %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// TLSMinVersion maps SMTP_TLS_MIN_VERSION to a crypto/tls constant.
func (c *Config) TLSMinVersion() (uint16, error) {
	switch strings.TrimPrefix(c.SMTPTLSMinVersion, "TLS") {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported SMTP_TLS_MIN_VERSION %q", c.SMTPTLSMinVersion)
}

// IsPostgres reports whether DatabaseURL points at PostgreSQL rather than
// a SQLite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
