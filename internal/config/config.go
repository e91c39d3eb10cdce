package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	Location    *time.Location
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	Release     string

	JWTSecret  string
	SessionTTL time.Duration

	// HourlyRate is the flat teacher rate used to price a completed class.
	HourlyRate float64

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	SMTP SMTPConfig

	BotToken  string // optional, enables Telegram notices to teachers
	BackupURL string

	RenewalScanInterval time.Duration
	ReminderInterval    time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.From != "" }

func Load() (*Config, error) {
	tz := getenv("TZ", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	dbURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	secret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	rate, err := getfloat("HOURLY_RATE", 4.0)
	if err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, fmt.Errorf("HOURLY_RATE: must not be negative")
	}
	ttl, err := getduration("SESSION_TTL", 72*time.Hour)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getint("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	scan, err := getduration("RENEWAL_SCAN_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	remind, err := getduration("REMINDER_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: dbURL,
		Location:    loc,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		Release:     getenv("RELEASE", "dev"),

		JWTSecret:  secret,
		SessionTTL: ttl,
		HourlyRate: rate,

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
		CheckoutCancelURL:   getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel"),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},

		BotToken:  os.Getenv("BOT_TOKEN"),
		BackupURL: getenv("BACKUPCTL_URL", "http://pgbackup:8081"),

		RenewalScanInterval: scan,
		ReminderInterval:    remind,
	}
	return cfg, nil
}

func (c *Config) IsProd() bool { return strings.ToLower(c.Env) == "prod" }

func requireEnv(k string) (string, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return "", fmt.Errorf("required env %s is empty", k)
	}
	return v, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getfloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
