// Package config defines the configuration for the season reminder service.
// Configuration is loaded once at process start and is immutable thereafter.
// Values come from the OS environment, with a .env file as a local fallback.
// A missing required value or invalid format fails the process immediately.
package config

import (
	"time"
)

// DefaultTimezone is the platform timezone used when neither the environment
// nor a session specifies one. All "tomorrow" arithmetic happens in this zone.
const DefaultTimezone = "America/New_York"

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Timezone is the platform zone for date arithmetic and cron schedules.
	Timezone string `envconfig:"PLATFORM_TIMEZONE" default:"America/New_York" validate:"required"`

	Database  DatabaseConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	Ops       OpsConfig
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	QueryTimeout    time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"10s"`
	MigrateOnStart  bool          `envconfig:"DB_MIGRATE_ON_START" default:"true"`
}

// EmailConfig holds mail transport configuration. The service sends through
// AWS SES v2; credentials come from the standard AWS chain.
type EmailConfig struct {
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`
	ConfigSetName string `envconfig:"SES_CONFIG_SET"`
	FromAddress   string `envconfig:"EMAIL_FROM_ADDRESS"`
	FromName      string `envconfig:"EMAIL_FROM_NAME" default:"Season Reminders"`
	// TestMode routes sends to the stub provider: nothing leaves the process.
	TestMode    bool          `envconfig:"EMAIL_TEST_MODE" default:"false"`
	SendTimeout time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"15s"`
}

// SchedulerConfig controls the two periodic tasks and the retry policy.
type SchedulerConfig struct {
	// Enabled gates cron registration entirely. It must stay false in test
	// runs and most local development.
	Enabled bool `envconfig:"SCHEDULER_ENABLED" default:"false"`

	// DailyHour is the local hour (0-23) at which the daily reminder jobs run.
	DailyHour int `envconfig:"REMINDER_DAILY_HOUR" default:"6" validate:"min=0,max=23"`

	RetryInterval time.Duration `envconfig:"REMINDER_RETRY_INTERVAL" default:"20m" validate:"min=1m"`
	MaxRetries    int           `envconfig:"REMINDER_MAX_RETRIES" default:"3" validate:"min=1"`
	RetryBatch    int           `envconfig:"REMINDER_RETRY_BATCH" default:"50" validate:"min=1"`
	SessionBatch  int           `envconfig:"REMINDER_SESSION_BATCH" default:"200" validate:"min=1"`

	// ExcludedSessionIDs are sessions never reminded about (e.g. placeholder
	// rows created by the registration wizard).
	ExcludedSessionIDs []string `envconfig:"REMINDER_EXCLUDED_SESSIONS"`
}

// OpsConfig holds the internal HTTP surface settings.
type OpsConfig struct {
	Port string `envconfig:"OPS_PORT" default:"8085"`
}

// CheckSendConfig verifies that the external configuration required to
// actually send reminders is present: a database to read rosters from and a
// mail identity to send as. The scheduler refuses to start without both, so a
// partially configured environment fails loudly instead of burning a run.
func (c *Config) CheckSendConfig() error {
	if c.Database.URL == "" {
		return missingErr("DATABASE_URL")
	}
	if c.Email.FromAddress == "" {
		return missingErr("EMAIL_FROM_ADDRESS")
	}
	return nil
}
