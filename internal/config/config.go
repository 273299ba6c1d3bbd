package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/platform/digest"
	"github.com/clinic/clinic/internal/platform/ids"
)

type Config struct {
	Port                 string   `mapstructure:"PORT"`
	Env                  string   `mapstructure:"ENV"`
	AuthSigningKey       string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer           string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string   `mapstructure:"AUTH_AUDIENCE"`
	RecordPassphraseHash string   `mapstructure:"RECORD_PASSPHRASE_HASH"`
	PatientIDScheme      string   `mapstructure:"PATIENT_ID_SCHEME"`
	PatientIDPrefix      string   `mapstructure:"PATIENT_ID_PREFIX"`
	CORSOrigins          []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int      `mapstructure:"RATE_LIMIT_BURST"`
	SeedDemo             bool     `mapstructure:"SEED_DEMO"`
	SeedValue            int64    `mapstructure:"SEED_VALUE"`
	DigestSchedule       string   `mapstructure:"DIGEST_SCHEDULE"`
	ReportLookbackMonths int      `mapstructure:"REPORT_LOOKBACK_MONTHS"`
}

var keys = []string{
	"PORT",
	"ENV",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"RECORD_PASSPHRASE_HASH",
	"PATIENT_ID_SCHEME",
	"PATIENT_ID_PREFIX",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"SEED_DEMO",
	"SEED_VALUE",
	"DIGEST_SCHEDULE",
	"REPORT_LOOKBACK_MONTHS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("PATIENT_ID_SCHEME", ids.SchemeSequence)
	v.SetDefault("PATIENT_ID_PREFIX", "P")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SEED_DEMO", false)
	v.SetDefault("SEED_VALUE", 42)
	v.SetDefault("REPORT_LOOKBACK_MONTHS", 6)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	if cfg.IsDev() {
		log.Warn().Msg("server is running in DEVELOPMENT mode: every request is treated as an admin; set ENV=production and AUTH_SIGNING_KEY for real deployments")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so bearer tokens are verified.
func (c *Config) Validate() error {
	switch c.PatientIDScheme {
	case ids.SchemeSequence, ids.SchemeUUID:
	default:
		return fmt.Errorf("PATIENT_ID_SCHEME must be %q or %q, got %q", ids.SchemeSequence, ids.SchemeUUID, c.PatientIDScheme)
	}
	if c.PatientIDScheme == ids.SchemeSequence && strings.TrimSpace(c.PatientIDPrefix) == "" {
		return fmt.Errorf("PATIENT_ID_PREFIX is required for the sequence scheme")
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q; refusing to start without authentication", c.Env)
	}

	if c.IsProduction() && c.SeedDemo {
		return fmt.Errorf("SEED_DEMO must be false when ENV=%q", c.Env)
	}

	if c.RecordPassphraseHash != "" {
		if _, err := bcrypt.Cost([]byte(c.RecordPassphraseHash)); err != nil {
			return fmt.Errorf("RECORD_PASSPHRASE_HASH is not a bcrypt hash: %w", err)
		}
	}

	if c.DigestSchedule != "" {
		if _, err := digest.ParseSchedule(c.DigestSchedule); err != nil {
			return fmt.Errorf("DIGEST_SCHEDULE: %w", err)
		}
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.ReportLookbackMonths <= 0 {
		return fmt.Errorf("REPORT_LOOKBACK_MONTHS must be positive, got %d", c.ReportLookbackMonths)
	}

	return nil
}
