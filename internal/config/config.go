package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OracleMode selects the context provider backing the oracle machines.
const (
	OracleModeDeterministic = "DETERMINISTIC"
	OracleModeLive          = "LIVE"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	OracleMode      string        `mapstructure:"ORACLE_MODE"`
	OracleURL       string        `mapstructure:"ORACLE_PROVIDER_URL"`
	OracleAPIKey    string        `mapstructure:"ORACLE_API_KEY"`
	OracleTimeout   time.Duration `mapstructure:"ORACLE_FETCH_TIMEOUT"`
	OracleIdleTTL   time.Duration `mapstructure:"ORACLE_IDLE_TTL"`
	CodingDebounce  time.Duration `mapstructure:"CODING_DEBOUNCE"`
	CodingThreshold float64       `mapstructure:"CODING_MIN_CONFIDENCE"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ORACLE_MODE", OracleModeDeterministic)
	v.SetDefault("ORACLE_FETCH_TIMEOUT", "8s")
	v.SetDefault("ORACLE_IDLE_TTL", "30m")
	v.SetDefault("CODING_DEBOUNCE", "500ms")
	v.SetDefault("CODING_MIN_CONFIDENCE", 0.4)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ORACLE_MODE")
	v.BindEnv("ORACLE_PROVIDER_URL")
	v.BindEnv("ORACLE_API_KEY")
	v.BindEnv("ORACLE_FETCH_TIMEOUT")
	v.BindEnv("ORACLE_IDLE_TTL")
	v.BindEnv("CODING_DEBOUNCE")
	v.BindEnv("CODING_MIN_CONFIDENCE")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.OracleMode = strings.ToUpper(cfg.OracleMode)
	switch cfg.OracleMode {
	case OracleModeDeterministic, OracleModeLive:
	default:
		return nil, fmt.Errorf("ORACLE_MODE must be %s or %s, got %q",
			OracleModeDeterministic, OracleModeLive, cfg.OracleMode)
	}

	if cfg.OracleMode == OracleModeLive && cfg.OracleURL == "" {
		return nil, fmt.Errorf("ORACLE_PROVIDER_URL is required when ORACLE_MODE=LIVE")
	}
	if cfg.OracleTimeout <= 0 {
		return nil, fmt.Errorf("ORACLE_FETCH_TIMEOUT must be positive")
	}
	if cfg.CodingDebounce <= 0 {
		return nil, fmt.Errorf("CODING_DEBOUNCE must be positive")
	}
	if cfg.CodingThreshold < 0 || cfg.CodingThreshold > 1 {
		return nil, fmt.Errorf("CODING_MIN_CONFIDENCE must be in [0,1]")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
