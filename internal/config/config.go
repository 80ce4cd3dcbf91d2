package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	ServerHost string

	// Database
	DatabaseURL  string
	DatabaseType string // "postgres" or "sqlite"
	DBLogLevel   string // "silent", "error", "warn", "info"

	// Logging
	LogLevel string

	// JWT
	JWTSecret     string
	JWTExpiration int // hours

	// Email
	EmailProvider   string // "smtp", "resend" or "log"
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPTimeout     time.Duration
	ResendAPIKey    string
	FromEmail       string
	EmailRatePerSec float64
	EmailBurst      int
	EmailMaxAttempt int
	EmailBaseDelay  time.Duration
	EmailWorkers    int

	// Event bus
	EventBus string // "gochannel" or "nats"
	NATSURL  string

	// Scheduler
	SchedulerEnabled    bool
	FormationInterval   time.Duration
	CompletionInterval  time.Duration
	StatusSyncInterval  time.Duration
	FormationWindow     time.Duration
	CompletionHorizon   time.Duration
	FormationMaxAttempt int
	FormationBaseDelay  time.Duration
	RandomSeed          uint64 // 0 picks a time-based seed

	// App
	AppURL     string
	AppName    string
	AdminEmail string
	SeedDemo   bool
}

// Load reads configuration from the environment. A .env file is optional.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		// Database
		DatabaseURL:  getEnv("DATABASE_URL", "hackathons.db"),
		DatabaseType: getEnv("DATABASE_TYPE", "sqlite"),
		DBLogLevel:   getEnv("DB_LOG_LEVEL", "warn"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
		JWTExpiration: getEnvInt("JWT_EXPIRATION", 72),

		// Email
		EmailProvider:   getEnv("EMAIL_PROVIDER", "log"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPTimeout:     getEnvDuration("SMTP_TIMEOUT", 10*time.Second),
		ResendAPIKey:    getEnv("RESEND_API_KEY", ""),
		FromEmail:       getEnv("FROM_EMAIL", "noreply@hackcrew.dev"),
		EmailRatePerSec: getEnvFloat("EMAIL_RATE_PER_SEC", 10),
		EmailBurst:      getEnvInt("EMAIL_BURST", 5),
		EmailMaxAttempt: getEnvInt("EMAIL_MAX_ATTEMPTS", 3),
		EmailBaseDelay:  getEnvDuration("EMAIL_BASE_DELAY", time.Second),
		EmailWorkers:    getEnvInt("EMAIL_WORKERS", 4),

		// Event bus
		EventBus: getEnv("EVENT_BUS", "gochannel"),
		NATSURL:  getEnv("NATS_URL", "nats://localhost:4222"),

		// Scheduler
		SchedulerEnabled:    getEnvBool("SCHEDULER_ENABLED", true),
		FormationInterval:   getEnvDuration("FORMATION_INTERVAL", 30*time.Second),
		CompletionInterval:  getEnvDuration("COMPLETION_INTERVAL", time.Minute),
		StatusSyncInterval:  getEnvDuration("STATUS_SYNC_INTERVAL", 5*time.Minute),
		FormationWindow:     getEnvDuration("FORMATION_WINDOW", 5*time.Minute),
		CompletionHorizon:   getEnvDuration("COMPLETION_HORIZON", 10*time.Minute),
		FormationMaxAttempt: getEnvInt("FORMATION_MAX_ATTEMPTS", 3),
		FormationBaseDelay:  getEnvDuration("FORMATION_BASE_DELAY", 500*time.Millisecond),
		RandomSeed:          getEnvUint64("RANDOM_SEED", 0),

		// App
		AppURL:     getEnv("APP_URL", "http://localhost:8080"),
		AppName:    getEnv("APP_NAME", "HackCrew"),
		AdminEmail: getEnv("ADMIN_EMAIL", "admin@hackcrew.dev"),
		SeedDemo:   getEnvBool("SEED_DEMO", false),
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.DatabaseType {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: DATABASE_TYPE must be postgres or sqlite, got %q", c.DatabaseType)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}

	switch c.EmailProvider {
	case "log":
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("config: SMTP_HOST is required when EMAIL_PROVIDER=smtp")
		}
	case "resend":
		if c.ResendAPIKey == "" {
			return fmt.Errorf("config: RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
		}
	default:
		return fmt.Errorf("config: unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}

	switch c.EventBus {
	case "gochannel":
	case "nats":
		if c.NATSURL == "" {
			return fmt.Errorf("config: NATS_URL is required when EVENT_BUS=nats")
		}
	default:
		return fmt.Errorf("config: unknown EVENT_BUS %q", c.EventBus)
	}

	for name, d := range map[string]time.Duration{
		"FORMATION_INTERVAL":   c.FormationInterval,
		"COMPLETION_INTERVAL":  c.CompletionInterval,
		"STATUS_SYNC_INTERVAL": c.StatusSyncInterval,
		"FORMATION_WINDOW":     c.FormationWindow,
		"COMPLETION_HORIZON":   c.CompletionHorizon,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}

	if c.FormationMaxAttempt < 1 || c.EmailMaxAttempt < 1 {
		return fmt.Errorf("config: retry attempts must be at least 1")
	}
	if c.EmailRatePerSec <= 0 || c.EmailBurst < 1 {
		return fmt.Errorf("config: email rate and burst must be positive")
	}
	if c.EmailWorkers < 1 {
		return fmt.Errorf("config: EMAIL_WORKERS must be at least 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
