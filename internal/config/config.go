// Package config defines the global configuration structure for the
// Courseflow delivery platform. Configuration is loaded once at process
// startup and is immutable thereafter; it follows 12-Factor principles by
// strictly separating code from configuration.
//
// Values are resolved via a priority chain: OS environment (highest), then a
// local .env file. Any missing required value or invalid format fails the
// process immediately on startup.
package config

import (
	"time"
)

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"courseflow"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Telegram  TelegramConfig
	Delivery  DeliveryConfig
	Habits    HabitConfig
	Worker    WorkerConfig
	Security  SecurityConfig
}

// ServerConfig holds the admin/ops HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// TelegramConfig holds the messaging transport credentials and timeouts.
type TelegramConfig struct {
	BotToken    string        `envconfig:"BOT_TOKEN" validate:"required"`
	SendTimeout time.Duration `envconfig:"TELEGRAM_SEND_TIMEOUT" default:"10s"`
}

// DeliveryConfig holds daily content delivery tuning.
//
// GraceMinutes bounds how far past the local delivery time same-day auto-send
// is still permitted. RemindAfterHours offsets the backlog reminder from the
// delivery time; if the candidate lands in the quiet window (which may wrap
// midnight) it is pushed to FallbackTime.
type DeliveryConfig struct {
	DefaultTimezone  string `envconfig:"DEFAULT_TIMEZONE" default:"Europe/Moscow"`
	GraceMinutes     int    `envconfig:"DELIVERY_GRACE_MINUTES" default:"15" validate:"min=0"`
	RemindAfterHours int    `envconfig:"REMIND_AFTER_HOURS" default:"12" validate:"min=1"`
	QuietHoursStart  string `envconfig:"QUIET_HOURS_START" default:"22:00"`
	QuietHoursEnd    string `envconfig:"QUIET_HOURS_END" default:"09:00"`
	FallbackTime     string `envconfig:"FALLBACK_SEND_TIME" default:"09:30"`
}

// HabitConfig holds habit reminder planning tuning.
type HabitConfig struct {
	PlanHorizonDays int `envconfig:"HABIT_PLAN_DAYS" default:"2" validate:"min=0,max=14"`
}

// WorkerConfig holds outbox drain tuning.
type WorkerConfig struct {
	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"1m"`
	BatchLimit   int           `envconfig:"OUTBOX_BATCH_LIMIT" default:"50" validate:"min=1"`
}

// SecurityConfig holds admin API access settings.
type SecurityConfig struct {
	AdminAPIKey string `envconfig:"ADMIN_API_KEY" validate:"required,min=16"`
}
