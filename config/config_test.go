package config

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"CLINIC_BACKEND", "CLINIC_DATA_DIR", "CLINIC_DB_PATH", "CLINIC_CATALOG_FILE",
		"CLINIC_LOG_LEVEL", "CLINIC_TAX_PERCENT", "CLINIC_SEED_USERS", "CLINIC_BCRYPT_COST",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "hospital.db"), cfg.DBPath)
	assert.Empty(t, cfg.CatalogFile)
	assert.True(t, cfg.TaxPercent.IsZero())
	assert.True(t, cfg.SeedUsers)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CLINIC_BACKEND", "FILE")
	t.Setenv("CLINIC_DATA_DIR", "/srv/clinic")
	t.Setenv("CLINIC_DB_PATH", "")
	t.Setenv("CLINIC_LOG_LEVEL", "debug")
	t.Setenv("CLINIC_TAX_PERCENT", "18")
	t.Setenv("CLINIC_SEED_USERS", "false")
	t.Setenv("CLINIC_BCRYPT_COST", "4")

	cfg := Load()
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, filepath.Join("/srv/clinic", "hospital.db"), cfg.DBPath)
	assert.True(t, cfg.TaxPercent.Equal(decimal.NewFromInt(18)))
	assert.False(t, cfg.SeedUsers)
	assert.Equal(t, 4, cfg.BcryptCost)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Backend: BackendFile, LogLevel: "info", BcryptCost: bcrypt.MinCost}
	}
	assert.NoError(t, base().Validate())

	c := base()
	c.Backend = "postgres"
	assert.ErrorContains(t, c.Validate(), "unknown backend")

	c = base()
	c.TaxPercent = decimal.NewFromInt(-1)
	assert.ErrorContains(t, c.Validate(), "tax percent")

	c = base()
	c.LogLevel = "loud"
	assert.ErrorContains(t, c.Validate(), "invalid log level")

	c = base()
	c.BcryptCost = 99
	assert.ErrorContains(t, c.Validate(), "bcrypt cost")
}

func TestLoad_MalformedValuesFailValidation(t *testing.T) {
	for key, bad := range map[string]string{
		"CLINIC_TAX_PERCENT": "abc",
		"CLINIC_BCRYPT_COST": "x",
		"CLINIC_SEED_USERS":  "maybe",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CLINIC_BACKEND", "")
			t.Setenv("CLINIC_LOG_LEVEL", "")
			t.Setenv("CLINIC_TAX_PERCENT", "")
			t.Setenv("CLINIC_BCRYPT_COST", "")
			t.Setenv("CLINIC_SEED_USERS", "")
			t.Setenv(key, bad)

			err := Load().Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	var errs []error
	t.Setenv("TEST_ENV_VAR", "value")
	assert.Equal(t, "value", getEnv("TEST_ENV_VAR", "default"))
	assert.Equal(t, "default", getEnv("CLINIC_TEST_NON_EXISTENT", "default"))

	t.Setenv("TEST_BOOL_VAR", "0")
	assert.False(t, getEnvBool("TEST_BOOL_VAR", true, &errs))
	t.Setenv("TEST_DEC_VAR", "7.5")
	assert.Equal(t, "7.5", getEnvDecimal("TEST_DEC_VAR", decimal.Zero, &errs).String())
	assert.Equal(t, 3, getEnvInt("CLINIC_TEST_NON_EXISTENT", 3, &errs))
	assert.Empty(t, errs)

	// GIVEN malformed values
	t.Setenv("TEST_BOOL_VAR", "invalid")
	t.Setenv("TEST_INT_VAR", "x")
	t.Setenv("TEST_DEC_VAR", "seven")

	// THEN the default is kept and each failure is recorded
	assert.True(t, getEnvBool("TEST_BOOL_VAR", true, &errs))
	assert.Equal(t, 10, getEnvInt("TEST_INT_VAR", 10, &errs))
	assert.True(t, getEnvDecimal("TEST_DEC_VAR", decimal.Zero, &errs).IsZero())
	require.Len(t, errs, 3)
	assert.ErrorContains(t, errs[1], "TEST_INT_VAR")
}
