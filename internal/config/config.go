// Package config defines the global configuration structure for the
// ClinicPulse report and reminder pipeline. Configuration is loaded once at
// process initialization and is immutable thereafter, following 12-Factor
// principles: all values come from the environment (optionally seeded from a
// .env file), and any missing required value or invalid format fails the
// process immediately on startup.
package config

import (
	"time"

	"clinicpulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"clinicpulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Email         EmailConfig
	Reports       ReportsConfig
	Worker        WorkerConfig
	Reminders     RemindersConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration for the trigger surface.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the connection target for the durable job broker.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379" validate:"required"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	// Provider selects the transport implementation: "ses" or "sendgrid".
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses sendgrid"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"reports@clinicpulse.io" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"ClinicPulse Reports"`
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	SESConfigSet   string       `envconfig:"SES_CONFIG_SET"`
}

// ReportsConfig holds the recurring report schedule and retry policy knobs.
type ReportsConfig struct {
	// IntervalDays is both the eligibility interval (an organization is due
	// when its last report is older than this) and the period each generated
	// report covers.
	IntervalDays int `envconfig:"REPORT_INTERVAL_DAYS" default:"3" validate:"min=1"`

	// ScheduleCron is the repeatable trigger pattern for the daily fan-out,
	// evaluated in the server timezone.
	ScheduleCron string `envconfig:"REPORT_SCHEDULE_CRON" default:"0 8 * * *"`

	// MaxAttempts is the total attempt ceiling per job (first run + retries).
	MaxAttempts int `envconfig:"REPORT_MAX_ATTEMPTS" default:"3" validate:"min=1"`

	// BackoffBase is the initial retry delay; subsequent retries double it.
	BackoffBase time.Duration `envconfig:"REPORT_BACKOFF_BASE" default:"1s"`

	// CompletedRetention is how long completed jobs remain inspectable.
	CompletedRetention time.Duration `envconfig:"REPORT_COMPLETED_RETENTION" default:"24h"`
}

// WorkerConfig bounds the report worker process.
type WorkerConfig struct {
	// Concurrency is the maximum number of jobs active simultaneously within
	// one worker process. Multiple worker processes may run, each
	// independently bounded.
	Concurrency int `envconfig:"WORKER_CONCURRENCY" default:"5" validate:"min=1"`
}

// RemindersConfig tunes the synchronous reminder sweep.
type RemindersConfig struct {
	// Window is how far ahead the sweep looks for upcoming appointments.
	Window time.Duration `envconfig:"REMINDER_WINDOW" default:"24h"`

	// MonthlyEmailLimit is the per-organization email ceiling, counted from
	// the first of the current calendar month in the append-only email log.
	MonthlyEmailLimit int `envconfig:"REMINDER_MONTHLY_EMAIL_LIMIT" default:"1000" validate:"min=1"`
}

// AWSConfig holds regional configuration for the SES and CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EndpointURL supports LocalStack in development. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ClinicPulse"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}
