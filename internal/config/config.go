package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	AdminJWTSecret     string
	LeadIntakeToken    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Engine policy
	ClinicTimezone            string
	ArrivalToleranceMinutes   int
	SocialMessagingWindowDays int
	DefaultTicketValidityDays int
	MaxSlotBookings           int

	// Periodic sweeps
	TicketSweepSchedule     string
	AutomationMotorSchedule string
	AutomationMotorBatch    int
	AutomationMotorWorkers  int
	OutboxPollInterval      time.Duration

	// Email dispatch
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESConfigSet      string
	EmailSubject      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		LeadIntakeToken:    getEnv("LEAD_INTAKE_TOKEN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicTimezone:            getEnv("CLINIC_TIMEZONE", "America/Mexico_City"),
		ArrivalToleranceMinutes:   getEnvAsInt("ARRIVAL_TOLERANCE_MINUTES", 15),
		SocialMessagingWindowDays: getEnvAsInt("SOCIAL_MESSAGING_WINDOW_DAYS", 7),
		DefaultTicketValidityDays: getEnvAsInt("DEFAULT_TICKET_VALIDITY_DAYS", 30),
		MaxSlotBookings:           getEnvAsInt("MAX_SLOT_BOOKINGS", 1),

		TicketSweepSchedule:     getEnv("TICKET_SWEEP_SCHEDULE", "@every 15m"),
		AutomationMotorSchedule: getEnv("AUTOMATION_MOTOR_SCHEDULE", "@every 5m"),
		AutomationMotorBatch:    getEnvAsInt("AUTOMATION_MOTOR_BATCH", 200),
		AutomationMotorWorkers:  getEnvAsInt("AUTOMATION_MOTOR_WORKERS", 4),
		OutboxPollInterval:      getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESConfigSet:      getEnv("SES_CONFIGURATION_SET", ""),
		EmailSubject:      getEnv("EMAIL_SUBJECT", "A message from your clinic"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Location resolves ClinicTimezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	if c == nil || c.ClinicTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
