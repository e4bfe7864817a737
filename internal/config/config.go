package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the whole application configuration
type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Database  DatabaseConfig  `envconfig:"DB"`
	Auth      AuthConfig      `envconfig:"AUTH"`
	Schedule  ScheduleConfig  `envconfig:"SCHEDULE"`
	RateLimit RateLimitConfig `envconfig:"RATE"`
	Log       LogConfig       `envconfig:"LOG"`
	AMQP      AMQPConfig      `envconfig:"AMQP"`
	Telegram  TelegramConfig  `envconfig:"TELEGRAM"`
}

// ServerConfig holds HTTP server settings. Every key can also be given without
// its SERVER_ prefix (PORT, READ_TIMEOUT, ...).
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `envconfig:"FILE" default:"booking.db"`
}

// AuthConfig holds JWT cookie settings and the bootstrap administrator
type AuthConfig struct {
	JWTSecret     string        `envconfig:"JWT_SECRET"`
	TokenTTL      time.Duration `envconfig:"JWT_TTL" default:"168h"`
	CookieName    string        `envconfig:"COOKIE_NAME" default:"token"`
	CookieSecure  bool          `envconfig:"COOKIE_SECURE" default:"true"`
	AdminEmail    string        `envconfig:"ADMIN_EMAIL"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD"`
}

// ScheduleConfig holds slot materialization settings
type ScheduleConfig struct {
	Timezone       string        `envconfig:"APP_TIMEZONE" default:"Asia/Riyadh"`
	HorizonDays    int           `envconfig:"HORIZON_DAYS" default:"14"`
	ReminderBefore time.Duration `envconfig:"REMINDER_BEFORE" default:"1h"`
}

// RateLimitConfig holds limits for the auth endpoints and for all routes
type RateLimitConfig struct {
	AuthAttempts  int           `envconfig:"AUTH_LIMIT" default:"10"`
	AuthWindow    time.Duration `envconfig:"AUTH_WINDOW" default:"15m"`
	HTTPPerMinute int           `envconfig:"HTTP_PER_MINUTE" default:"120"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `envconfig:"LEVEL" default:"info"`
}

// AMQPConfig enables booking event publishing when URL is set
type AMQPConfig struct {
	URL      string `envconfig:"URL"`
	Exchange string `envconfig:"EXCHANGE" default:"booking.events"`
}

// TelegramConfig enables admin notifications when Token is set
type TelegramConfig struct {
	Token       string `envconfig:"TOKEN"`
	AdminChatID int64  `envconfig:"ADMIN_CHAT_ID"`
}

// Load reads an optional .env file and then the environment
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_FILE is required")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("COOKIE_NAME is required")
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	if c.Schedule.HorizonDays <= 0 || c.Schedule.HorizonDays > 365 {
		return fmt.Errorf("SCHEDULE_HORIZON_DAYS must be between 1 and 365")
	}
	if c.Schedule.ReminderBefore < 0 {
		return fmt.Errorf("SCHEDULE_REMINDER_BEFORE must be non-negative")
	}

	if c.RateLimit.AuthAttempts <= 0 || c.RateLimit.AuthWindow <= 0 {
		return fmt.Errorf("RATE_AUTH_LIMIT and RATE_AUTH_WINDOW must be positive")
	}
	if c.RateLimit.HTTPPerMinute <= 0 {
		return fmt.Errorf("RATE_HTTP_PER_MINUTE must be positive")
	}

	if c.Telegram.Token != "" && c.Telegram.AdminChatID == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}

	return nil
}

// Location returns the service timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
