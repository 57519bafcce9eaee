package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/medtransfer/dss/internal/domain/transfer"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	LogLevel         string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit        string   `mapstructure:"BODY_LIMIT"`
	SessionCacheSize int      `mapstructure:"SESSION_CACHE_SIZE"`

	// Demo defaults applied to requests that leave a parameter unset.
	Defaults transfer.Params `mapstructure:"-"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	d := transfer.DefaultParams()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("SESSION_CACHE_SIZE", 32)
	v.SetDefault("N_HOSPITALS", d.NHospitals)
	v.SetDefault("N_TRANSFERS", d.NTransfers)
	v.SetDefault("SEED_H", d.SeedH)
	v.SetDefault("SEED_T", d.SeedT)
	v.SetDefault("TOP_K", d.TopK)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "CORS_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "SESSION_CACHE_SIZE",
		"N_HOSPITALS", "N_TRANSFERS", "SEED_H", "SEED_T", "TOP_K",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Defaults = transfer.Params{
		NHospitals: v.GetInt("N_HOSPITALS"),
		NTransfers: v.GetInt("N_TRANSFERS"),
		SeedH:      v.GetUint64("SEED_H"),
		SeedT:      v.GetUint64("SEED_T"),
		TopK:       v.GetInt("TOP_K"),
	}

	// A comma-separated env value arrives as a single element.
	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level named by LOG_LEVEL.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Validate checks that the configuration is usable before the server starts.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.SessionCacheSize < 1 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be at least 1, got %d", c.SessionCacheSize)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("demo defaults: %w", err)
	}
	return nil
}
