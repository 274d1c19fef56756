package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	UpstreamURL     string        `mapstructure:"UPSTREAM_URL"`
	UpstreamToken   string        `mapstructure:"UPSTREAM_TOKEN"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	UpstreamRetries int           `mapstructure:"UPSTREAM_RETRIES"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	PollInterval          time.Duration `mapstructure:"POLL_INTERVAL"`
	ViewIdleTimeout       time.Duration `mapstructure:"VIEW_IDLE_TIMEOUT"`
	RecordNumberMinLength int           `mapstructure:"RECORD_NUMBER_MIN_LENGTH"`

	HoursMinimal        float64 `mapstructure:"HOURS_MINIMAL"`
	HoursIntermediate   float64 `mapstructure:"HOURS_INTERMEDIATE"`
	HoursHighDependency float64 `mapstructure:"HOURS_HIGH_DEPENDENCY"`
	HoursSemiIntensive  float64 `mapstructure:"HOURS_SEMI_INTENSIVE"`
	HoursIntensive      float64 `mapstructure:"HOURS_INTENSIVE"`
	StandardWeeklyHours float64 `mapstructure:"STANDARD_WEEKLY_HOURS"`
}

var keys = []string{
	"PORT", "ENV", "CORS_ORIGINS",
	"UPSTREAM_URL", "UPSTREAM_TOKEN", "UPSTREAM_TIMEOUT", "UPSTREAM_RETRIES",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"POLL_INTERVAL", "VIEW_IDLE_TIMEOUT", "RECORD_NUMBER_MIN_LENGTH",
	"HOURS_MINIMAL", "HOURS_INTERMEDIATE", "HOURS_HIGH_DEPENDENCY",
	"HOURS_SEMI_INTENSIVE", "HOURS_INTENSIVE", "STANDARD_WEEKLY_HOURS",
}

// Load reads the environment, falling back to an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("UPSTREAM_RETRIES", 2)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("VIEW_IDLE_TIMEOUT", "5m")
	v.SetDefault("RECORD_NUMBER_MIN_LENGTH", 3)
	v.SetDefault("HOURS_MINIMAL", 4)
	v.SetDefault("HOURS_INTERMEDIATE", 6)
	v.SetDefault("HOURS_HIGH_DEPENDENCY", 10)
	v.SetDefault("HOURS_SEMI_INTENSIVE", 10)
	v.SetDefault("HOURS_INTENSIVE", 18)
	v.SetDefault("STANDARD_WEEKLY_HOURS", 36)

	// Unmarshal only sees env vars that are bound
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// a single comma separated value arrives as one element
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return nil, fmt.Errorf("UPSTREAM_URL is required")
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// tokens must be verifiable, so AUTH_SIGNING_KEY is required.
func (c *Config) Validate() error {
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL must be an absolute URL, got %q", c.UpstreamURL)
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.UpstreamRetries < 0 {
		return fmt.Errorf("UPSTREAM_RETRIES cannot be negative")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.ViewIdleTimeout < c.PollInterval {
		return fmt.Errorf("VIEW_IDLE_TIMEOUT (%s) must not be shorter than POLL_INTERVAL (%s)", c.ViewIdleTimeout, c.PollInterval)
	}
	if c.RecordNumberMinLength < 0 {
		return fmt.Errorf("RECORD_NUMBER_MIN_LENGTH cannot be negative")
	}
	for name, h := range map[string]float64{
		"HOURS_MINIMAL":         c.HoursMinimal,
		"HOURS_INTERMEDIATE":    c.HoursIntermediate,
		"HOURS_HIGH_DEPENDENCY": c.HoursHighDependency,
		"HOURS_SEMI_INTENSIVE":  c.HoursSemiIntensive,
		"HOURS_INTENSIVE":       c.HoursIntensive,
		"STANDARD_WEEKLY_HOURS": c.StandardWeeklyHours,
	} {
		if h <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
