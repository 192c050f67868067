package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"library-ledger-backend/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Lending   LendingConfig   `yaml:"lending"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Email     EmailConfig     `yaml:"email"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Identity  IdentityConfig  `yaml:"identity"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// SecureCookies marks the auth cookie Secure; turn off only for local http.
	SecureCookies bool `yaml:"secure_cookies"`
}

// DatabaseConfig contains ledger store settings
type DatabaseConfig struct {
	Backend  string `yaml:"backend"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	// Migrate creates the schema on startup.
	Migrate bool `yaml:"migrate"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LendingConfig contains the lending policy
type LendingConfig struct {
	DefaultLoanDays     int   `yaml:"default_loan_days"`
	MaxLoanDays         int   `yaml:"max_loan_days"`
	AllowOverdueRenewal bool  `yaml:"allow_overdue_renewal"`
	MaxRenewals         int   `yaml:"max_renewals"`
	DueSoonDays         int   `yaml:"due_soon_days"`
	FinePerDayCents     int32 `yaml:"fine_per_day_cents"`
	MaxFineCents        int32 `yaml:"max_fine_cents"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireReservations   string `yaml:"expire_reservations"`
	SendOverdueReminders string `yaml:"send_overdue_reminders"`
	SendDueSoonReminders string `yaml:"send_due_soon_reminders"`
}

// EmailConfig contains SendGrid settings. Without an API key reminders are
// only logged.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	From           string `yaml:"from"`
	FromName       string `yaml:"from_name"`
}

// RedisConfig backs the idempotency-key cache. An empty address keeps the
// cache in process.
type RedisConfig struct {
	Addr                string `yaml:"addr"`
	Password            string `yaml:"password"`
	DB                  int    `yaml:"db"`
	IdempotencyTTLHours int    `yaml:"idempotency_ttl_hours"`
}

// KafkaConfig contains the ledger event publisher settings. No brokers means
// events are dropped.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// IdentityConfig selects where members live.
type IdentityConfig struct {
	Backend       string `yaml:"backend"` // "postgres", "mongo" or "memory"
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_BACKEND"); val != "" {
		c.Database.Backend = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Kafka
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Kafka.Brokers = strings.Split(val, ",")
	}

	// Identity
	if val := os.Getenv("MONGO_URI"); val != "" {
		c.Identity.MongoURI = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Backend {
	case "":
		c.Database.Backend = "postgres"
		fallthrough
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database backend: %q", c.Database.Backend)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 24 * 60
	}

	// Lending defaults
	def := domain.DefaultLendingPolicy()
	if c.Lending.DefaultLoanDays == 0 {
		c.Lending.DefaultLoanDays = def.DefaultLoanDays
	}
	if c.Lending.DueSoonDays == 0 {
		c.Lending.DueSoonDays = def.DueSoonDays
	}
	if c.Lending.FinePerDayCents == 0 {
		c.Lending.FinePerDayCents = def.FinePerDayCents
	}
	if c.Lending.MaxFineCents == 0 {
		c.Lending.MaxFineCents = def.MaxFineCents
	}
	if c.Lending.MaxLoanDays > 0 && c.Lending.DefaultLoanDays > c.Lending.MaxLoanDays {
		return fmt.Errorf("default loan days (%d) exceed max loan days (%d)", c.Lending.DefaultLoanDays, c.Lending.MaxLoanDays)
	}

	// Scheduler defaults
	if c.Scheduler.ExpireReservations == "" {
		c.Scheduler.ExpireReservations = "0 */5 * * * *" // Every 5 minutes
	}
	if c.Scheduler.SendOverdueReminders == "" {
		c.Scheduler.SendOverdueReminders = "0 0 3 * * *" // 3 AM UTC
	}
	if c.Scheduler.SendDueSoonReminders == "" {
		c.Scheduler.SendDueSoonReminders = "0 0 9 * * *" // 9 AM UTC
	}

	if c.Email.From == "" {
		c.Email.From = "no-reply@library.local"
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Library"
	}

	if c.Redis.IdempotencyTTLHours == 0 {
		c.Redis.IdempotencyTTLHours = 24
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger-events"
	}

	switch c.Identity.Backend {
	case "":
		c.Identity.Backend = "postgres"
	case "postgres", "memory":
	case "mongo":
		if c.Identity.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for the mongo identity backend")
		}
		if c.Identity.MongoDatabase == "" {
			c.Identity.MongoDatabase = "library"
		}
	default:
		return fmt.Errorf("unknown identity backend: %q", c.Identity.Backend)
	}
	if c.Identity.Backend == "postgres" && c.Database.Backend == "memory" {
		c.Identity.Backend = "memory"
	}

	return nil
}

// Policy converts the lending section into the domain policy.
func (c *Config) Policy() domain.LendingPolicy {
	return domain.LendingPolicy{
		DefaultLoanDays:     c.Lending.DefaultLoanDays,
		MaxLoanDays:         c.Lending.MaxLoanDays,
		AllowOverdueRenewal: c.Lending.AllowOverdueRenewal,
		MaxRenewals:         c.Lending.MaxRenewals,
		DueSoonDays:         c.Lending.DueSoonDays,
		FinePerDayCents:     c.Lending.FinePerDayCents,
		MaxFineCents:        c.Lending.MaxFineCents,
	}
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
