package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	BallotRateLimitRPM int

	NotifyWebhookURL string
	NotifyTimeoutMS  int

	JobQueueSize   int
	JobMaxAttempts int

	VoteSweepSchedule string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("GV_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("GV_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("GV_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("GV_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("GV_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("GV_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("GV_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("GV_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("GV_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("GV_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("GV_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("GV_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("GV_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.BallotRateLimitRPM, err = getEnvIntOrDefault("GV_BALLOT_RATE_LIMIT_RPM", 30)
	if err != nil {
		return nil, err
	}

	// Empty disables outbound notifications.
	cfg.NotifyWebhookURL = strings.TrimSpace(os.Getenv("GV_NOTIFY_WEBHOOK_URL"))
	if cfg.NotifyWebhookURL != "" && !strings.HasPrefix(cfg.NotifyWebhookURL, "https://") && cfg.Env == "prod" {
		return nil, fmt.Errorf("GV_NOTIFY_WEBHOOK_URL must use https in prod")
	}

	cfg.NotifyTimeoutMS, err = getEnvIntOrDefault("GV_NOTIFY_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.NotifyTimeoutMS <= 0 || cfg.NotifyTimeoutMS > 30000 {
		return nil, fmt.Errorf("GV_NOTIFY_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.NotifyTimeoutMS)
	}

	cfg.JobQueueSize, err = getEnvIntOrDefault("GV_JOB_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	if cfg.JobQueueSize <= 0 {
		return nil, fmt.Errorf("GV_JOB_QUEUE_SIZE must be positive (got: %d)", cfg.JobQueueSize)
	}

	cfg.JobMaxAttempts, err = getEnvIntOrDefault("GV_JOB_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	if cfg.JobMaxAttempts < 1 || cfg.JobMaxAttempts > 10 {
		return nil, fmt.Errorf("GV_JOB_MAX_ATTEMPTS must be between 1 and 10 (got: %d)", cfg.JobMaxAttempts)
	}

	cfg.VoteSweepSchedule = getEnvOrDefault("GV_VOTE_SWEEP_SCHEDULE", "*/5 * * * *")
	if _, err := cron.ParseStandard(cfg.VoteSweepSchedule); err != nil {
		return nil, fmt.Errorf("GV_VOTE_SWEEP_SCHEDULE is not a valid cron expression: %w", err)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	webhook := ""
	if c.NotifyWebhookURL != "" {
		webhook = "[REDACTED]"
	}
	return map[string]string{
		"GV_ENV":                   c.Env,
		"GV_HTTP_ADDR":             c.HTTPAddr,
		"GV_BASE_URL":              c.BaseURL,
		"GV_DB_DSN":                redactDSN(c.DBDSN),
		"GV_JWT_SECRET":            "[REDACTED]",
		"GV_LOG_LEVEL":             c.LogLevel,
		"GV_BALLOT_RATE_LIMIT_RPM": fmt.Sprintf("%d", c.BallotRateLimitRPM),
		"GV_NOTIFY_WEBHOOK_URL":    webhook,
		"GV_NOTIFY_TIMEOUT_MS":     fmt.Sprintf("%d", c.NotifyTimeoutMS),
		"GV_JOB_QUEUE_SIZE":        fmt.Sprintf("%d", c.JobQueueSize),
		"GV_JOB_MAX_ATTEMPTS":      fmt.Sprintf("%d", c.JobMaxAttempts),
		"GV_VOTE_SWEEP_SCHEDULE":   c.VoteSweepSchedule,
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
