package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"seasonmail/internal/types"
)

// Load reads configuration from the environment.
//
// Sequence:
//  1. Load a .env file if present (non-fatal if missing; never overrides
//     variables already set in the environment).
//  2. Process envconfig tags to populate the Config struct.
//  3. Validate the struct with go-playground/validator.
//  4. Verify the platform timezone resolves.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "processing environment", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "validating configuration", err)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown PLATFORM_TIMEZONE %q", cfg.Timezone), err)
	}

	return &cfg, nil
}

// Location resolves the platform timezone. Callers should treat a failure
// here as a programming error since Load already validated the name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func missingErr(name string) error {
	return types.NewAppError(types.ErrCodeConfigMissing, name+" is not set", nil)
}
