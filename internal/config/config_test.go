package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CLINIC_TIMEZONE", "")
	t.Setenv("ARRIVAL_TOLERANCE_MINUTES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ArrivalToleranceMinutes != 15 {
		t.Fatalf("expected default arrival tolerance 15, got %d", cfg.ArrivalToleranceMinutes)
	}
	if cfg.SocialMessagingWindowDays != 7 {
		t.Fatalf("expected default messaging window 7, got %d", cfg.SocialMessagingWindowDays)
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("expected default outbox interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.TicketSweepSchedule != "@every 15m" {
		t.Fatalf("expected default sweep schedule, got %s", cfg.TicketSweepSchedule)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("ARRIVAL_TOLERANCE_MINUTES", "10")
	t.Setenv("AUTOMATION_MOTOR_BATCH", "50")
	t.Setenv("OUTBOX_POLL_INTERVAL", "5s")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("EMAIL_PROVIDER", " SendGrid ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.ArrivalToleranceMinutes != 10 {
		t.Fatalf("expected tolerance override, got %d", cfg.ArrivalToleranceMinutes)
	}
	if cfg.AutomationMotorBatch != 50 {
		t.Fatalf("expected batch override, got %d", cfg.AutomationMotorBatch)
	}
	if cfg.OutboxPollInterval != 5*time.Second {
		t.Fatalf("expected outbox interval override, got %s", cfg.OutboxPollInterval)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Mars/Phobos"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback for unknown zone")
	}
	cfg.ClinicTimezone = "America/New_York"
	if cfg.Location().String() != "America/New_York" {
		t.Fatalf("expected named zone, got %s", cfg.Location())
	}
	var nilCfg *Config
	if nilCfg.Location() != time.UTC {
		t.Fatalf("expected UTC for nil config")
	}
}
