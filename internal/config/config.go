package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SKIM_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SKIM_DB_MAX_CONNS" default:"8"`

	HTTPHost string `envconfig:"SKIM_HTTP_HOST" default:"127.0.0.1"`
	HTTPPort int    `envconfig:"SKIM_HTTP_PORT" default:"8810"`

	// DetectLanguage gates the lingua model load; it is expensive to
	// initialize and not every deployment wants it.
	DetectLanguage bool `envconfig:"SKIM_DETECT_LANGUAGE" default:"true"`

	FetchUserAgent string `envconfig:"SKIM_FETCH_USER_AGENT" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SKIM_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SKIM_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SKIM_DB_MIN_CONNS (%d) cannot exceed SKIM_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("SKIM_HTTP_PORT must be a valid port")
	}
	return nil
}
