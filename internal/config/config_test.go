package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:                 "development",
		UpstreamURL:         "http://records:8080",
		UpstreamTimeout:     10 * time.Second,
		UpstreamRetries:     2,
		DBMaxConns:          10,
		DBMinConns:          2,
		PollInterval:        30 * time.Second,
		ViewIdleTimeout:     5 * time.Minute,
		HoursMinimal:        4,
		HoursIntermediate:   6,
		HoursHighDependency: 10,
		HoursSemiIntensive:  10,
		HoursIntensive:      18,
		StandardWeeklyHours: 36,
	}
}

func TestLoad_RequiresUpstreamURL(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when UPSTREAM_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://records:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("expected poll interval 30s, got %s", cfg.PollInterval)
	}
	if cfg.ViewIdleTimeout != 5*time.Minute {
		t.Errorf("expected view idle timeout 5m, got %s", cfg.ViewIdleTimeout)
	}
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("expected upstream timeout 10s, got %s", cfg.UpstreamTimeout)
	}
	if cfg.UpstreamRetries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.UpstreamRetries)
	}
	if cfg.RecordNumberMinLength != 3 {
		t.Errorf("expected record number min length 3, got %d", cfg.RecordNumberMinLength)
	}
	if cfg.HoursIntensive != 18 || cfg.HoursMinimal != 4 {
		t.Errorf("unexpected hour defaults: %+v", cfg)
	}
	if cfg.StandardWeeklyHours != 36 {
		t.Errorf("expected 36 weekly hours, got %g", cfg.StandardWeeklyHours)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://records:8080")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("HOURS_INTENSIVE", "17.9")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("expected 10s, got %s", cfg.PollInterval)
	}
	if cfg.HoursIntensive != 17.9 {
		t.Errorf("expected 17.9, got %g", cfg.HoursIntensive)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"production without signing key", func(c *Config) { c.Env = "production" }, "AUTH_SIGNING_KEY"},
		{"production with signing key", func(c *Config) { c.Env = "production"; c.AuthSigningKey = "k" }, ""},
		{"relative upstream", func(c *Config) { c.UpstreamURL = "records" }, "UPSTREAM_URL"},
		{"negative retries", func(c *Config) { c.UpstreamRetries = -1 }, "UPSTREAM_RETRIES"},
		{"sub-second poll", func(c *Config) { c.PollInterval = 100 * time.Millisecond }, "POLL_INTERVAL"},
		{"idle shorter than poll", func(c *Config) { c.ViewIdleTimeout = 10 * time.Second }, "VIEW_IDLE_TIMEOUT"},
		{"zero hours", func(c *Config) { c.HoursSemiIntensive = 0 }, "HOURS_SEMI_INTENSIVE"},
		{"zero weekly hours", func(c *Config) { c.StandardWeeklyHours = 0 }, "STANDARD_WEEKLY_HOURS"},
		{"min conns above max", func(c *Config) { c.DBMinConns = 20 }, "DB_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
