package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	Port              string        `mapstructure:"PORT"`
	DataDir           string        `mapstructure:"DATA_DIR"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	AuthorName        string        `mapstructure:"AUTHOR_NAME"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	TrackedFieldsFile string        `mapstructure:"TRACKED_FIELDS_FILE"`
	QRSize            int           `mapstructure:"QR_SIZE"`
	FollowUpAfter     time.Duration `mapstructure:"FOLLOW_UP_AFTER"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
}

// ErrNoDatabase is returned by RequireDatabase when no remote store is
// configured.
var ErrNoDatabase = errors.New("DATABASE_URL is required for this command")

var keys = []string{
	"ENV", "PORT", "DATA_DIR", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTHOR_NAME", "LOG_LEVEL", "TRACKED_FIELDS_FILE", "QR_SIZE",
	"FOLLOW_UP_AFTER", "REQUEST_TIMEOUT", "CORS_ORIGINS",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. The remote database is optional; commands that
// need it call RequireDatabase.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8000")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("QR_SIZE", 512)
	v.SetDefault("FOLLOW_UP_AFTER", "2h")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.AuthorName = strings.TrimSpace(cfg.AuthorName)

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects settings the tool cannot run with.
func (c *Config) Validate() error {
	if c.QRSize < 64 || c.QRSize > 4096 {
		return fmt.Errorf("QR_SIZE must be between 64 and 4096 pixels, got %d", c.QRSize)
	}
	if c.FollowUpAfter < 0 {
		return fmt.Errorf("FOLLOW_UP_AFTER must not be negative, got %s", c.FollowUpAfter)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must be set")
	}
	return nil
}

// RequireDatabase reports ErrNoDatabase when DATABASE_URL is empty.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrNoDatabase
	}
	return nil
}

// Level returns the configured zerolog level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
