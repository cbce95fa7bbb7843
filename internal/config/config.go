// Package config loads application configuration from a YAML file with
// environment variable overrides (prefix MG_, nested keys joined by _).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	Log           LogConfig           `koanf:"log"`
	Queue         QueueConfig         `koanf:"queue"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Reminders     RemindersConfig     `koanf:"reminders"`
	Senders       SendersConfig       `koanf:"senders"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool and migrations.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// RedisConfig configures the priority index store.
type RedisConfig struct {
	URL             string        `koanf:"url"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

// QueueConfig configures the message queue processor.
type QueueConfig struct {
	ProcessInterval time.Duration `koanf:"process_interval"`
	BatchSize       int           `koanf:"batch_size"`
	SendTimeout     time.Duration `koanf:"send_timeout"`
	MaxAttempts     int           `koanf:"max_attempts"`
	StuckAfter      time.Duration `koanf:"stuck_after"`
}

// NotificationsConfig configures the fan-out service.
type NotificationsConfig struct {
	DispatchConcurrency int `koanf:"dispatch_concurrency"`
	PushBuffer          int `koanf:"push_buffer"`
}

// RemindersConfig configures the reminder scheduler.
type RemindersConfig struct {
	Enabled           bool          `koanf:"enabled"`
	RunInterval       time.Duration `koanf:"run_interval"`
	Intervals         []int         `koanf:"intervals"` // days, ascending
	MaxReminders      int           `koanf:"max_reminders"`
	ExcludeWeekends   bool          `koanf:"exclude_weekends"`
	BusinessHoursOnly bool          `koanf:"business_hours_only"`
	BusinessStartHour int           `koanf:"business_start_hour"`
	BusinessEndHour   int           `koanf:"business_end_hour"`
}

// SendersConfig configures the channel sender providers.
type SendersConfig struct {
	Email    EmailSenderConfig    `koanf:"email"`
	SMS      SMSSenderConfig      `koanf:"sms"`
	WhatsApp WhatsAppSenderConfig `koanf:"whatsapp"`
}

// EmailSenderConfig configures SMTP delivery.
type EmailSenderConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// SMSSenderConfig configures the SMS gateway provider.
type SMSSenderConfig struct {
	Enabled    bool          `koanf:"enabled"`
	APIURL     string        `koanf:"api_url"`
	APIKey     string        `koanf:"api_key"`
	FromNumber string        `koanf:"from_number"`
	RateLimit  float64       `koanf:"rate_limit"` // requests per second
	Timeout    time.Duration `koanf:"timeout"`
}

// WhatsAppSenderConfig configures the WhatsApp Business API provider.
type WhatsAppSenderConfig struct {
	Enabled     bool          `koanf:"enabled"`
	APIURL      string        `koanf:"api_url"`
	AccessToken string        `koanf:"access_token"`
	PhoneID     string        `koanf:"phone_id"`
	RateLimit   float64       `koanf:"rate_limit"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Default returns the configuration defaults applied before file and
// environment loading.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			Migrate:         true,
			MigrationsPath:  "migrations",
		},
		Redis: RedisConfig{
			URL:             "redis://localhost:6379/0",
			ConnectTimeout:  10 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Queue: QueueConfig{
			ProcessInterval: 30 * time.Second,
			BatchSize:       10,
			SendTimeout:     15 * time.Second,
			MaxAttempts:     3,
			StuckAfter:      10 * time.Minute,
		},
		Notifications: NotificationsConfig{
			DispatchConcurrency: 4,
			PushBuffer:          16,
		},
		Reminders: RemindersConfig{
			Enabled:           true,
			RunInterval:       5 * time.Minute,
			Intervals:         []int{1, 3, 7, 14},
			MaxReminders:      4,
			ExcludeWeekends:   false,
			BusinessHoursOnly: false,
			BusinessStartHour: 9,
			BusinessEndHour:   18,
		},
		Senders: SendersConfig{
			Email: EmailSenderConfig{
				SMTPPort: 587,
			},
			SMS: SMSSenderConfig{
				RateLimit: 10,
				Timeout:   10 * time.Second,
			},
			WhatsApp: WhatsAppSenderConfig{
				RateLimit: 10,
				Timeout:   10 * time.Second,
			},
		},
	}
}

// Load reads configuration from the given YAML file (optional) and the
// environment, layered over Default().
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// MG_DATABASE_URL -> database.url, MG_QUEUE_PROCESS_INTERVAL -> queue.process_interval
	err := k.Load(env.Provider("MG_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "MG_"))
		return strings.Replace(key, "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Queue.BatchSize <= 0 {
		return errors.New("config: queue.batch_size must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("config: queue.max_attempts must be positive")
	}
	for i := 1; i < len(c.Reminders.Intervals); i++ {
		if c.Reminders.Intervals[i] <= c.Reminders.Intervals[i-1] {
			return errors.New("config: reminders.intervals must be ascending")
		}
	}
	if c.Reminders.BusinessHoursOnly &&
		(c.Reminders.BusinessStartHour < 0 || c.Reminders.BusinessEndHour > 24 ||
			c.Reminders.BusinessStartHour >= c.Reminders.BusinessEndHour) {
		return errors.New("config: invalid reminders business hours window")
	}
	return nil
}
