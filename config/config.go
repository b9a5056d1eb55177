// Package config resolves runtime settings for the clinic tools.
//
// Environment variables are read by Load. A .env file is picked up by the
// binary through godotenv/autoload; real environment variables win. The
// service catalog and seed accounts come from a YAML document (see
// settings.go), with built-in defaults embedded in the binary.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the environment-level settings.
type Config struct {
	Backend     string
	DataDir     string
	DBPath      string
	CatalogFile string
	LogLevel    string
	TaxPercent  decimal.Decimal

	// SeedUsers controls whether an empty users table receives the
	// configured staff accounts on open.
	SeedUsers  bool
	BcryptCost int

	// parseErr holds every malformed variable seen by Load.
	parseErr error
}

// Load reads configuration from environment variables.
func Load() *Config {
	var errs []error
	dataDir := getEnv("CLINIC_DATA_DIR", "data")
	cfg := &Config{
		Backend:     strings.ToLower(getEnv("CLINIC_BACKEND", BackendSQLite)),
		DataDir:     dataDir,
		DBPath:      getEnv("CLINIC_DB_PATH", filepath.Join(dataDir, "hospital.db")),
		CatalogFile: getEnv("CLINIC_CATALOG_FILE", ""),
		LogLevel:    getEnv("CLINIC_LOG_LEVEL", "info"),
		TaxPercent:  getEnvDecimal("CLINIC_TAX_PERCENT", decimal.Zero, &errs),
		SeedUsers:   getEnvBool("CLINIC_SEED_USERS", true, &errs),
		BcryptCost:  getEnvInt("CLINIC_BCRYPT_COST", bcrypt.DefaultCost, &errs),
	}
	cfg.parseErr = errors.Join(errs...)
	return cfg
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.parseErr != nil {
		return c.parseErr
	}
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendFile, BackendSQLite)
	}
	if c.TaxPercent.IsNegative() {
		return fmt.Errorf("tax percent must not be negative, got %s", c.TaxPercent)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	_, err := c.Level()
	return err
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// The typed helpers return def when key is unset. A value that does not
// parse also yields def, and the failure is appended to errs.

func getEnvBool(key string, def bool, errs *[]error) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a boolean", key, v))
	}
	return def
}

func getEnvInt(key string, def int, errs *[]error) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want an integer", key, v))
	}
	return def
}

func getEnvDecimal(key string, def decimal.Decimal, errs *[]error) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d
		}
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a number", key, v))
	}
	return def
}
