package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()

	assert.Equal(t, 32, s.Hash.PerceptualSize)
	assert.Equal(t, 8, s.Hash.HighFreqFactor)
	assert.Equal(t, 8, s.Hash.ColorBinBits)
	assert.Equal(t, DriverFile, s.Catalog.Driver)
	assert.Equal(t, 50, s.Builder.BatchSize)
	assert.Equal(t, 15*time.Second, s.Builder.FetchTimeout)
	assert.Equal(t, 100*time.Millisecond, s.Builder.Delay)
	assert.Equal(t, time.Hour, s.TCGdex.CacheTTL)
	assert.True(t, s.TCGdex.FillReleaseDates, "the set listing carries no dates")
	assert.Equal(t, []string{"sv", "swsh", "sm", "xy"}, s.Resolver.ModernPrefixes)
	assert.Equal(t, 30, s.API.DefaultThreshold)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	require.NotNil(t, s.Logging.FileOutput)
	assert.Equal(t, 32*1024, s.Logging.FileOutput.BufferSize)
	assert.Equal(t, 5*time.Second, s.Logging.FileOutput.FlushInterval)

	require.NoError(t, ValidateSettings(s), "defaults must validate")
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
catalog:
  driver: sqlite
  sqlite_path: /var/lib/cardmatch/cards.db
builder:
  batch_size: 10
  fetch_timeout: 3s
server:
  port: 8080
`)

	s, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, s.Catalog.Driver)
	assert.Equal(t, "/var/lib/cardmatch/cards.db", s.Catalog.SQLitePath)
	assert.Equal(t, 10, s.Builder.BatchSize)
	assert.Equal(t, 3*time.Second, s.Builder.FetchTimeout)
	assert.Equal(t, "0.0.0.0:8080", s.Server.Address())
	assert.Equal(t, path, s.ConfigFile)
	assert.Equal(t, 32, s.Hash.DifferenceSize, "unset keys keep defaults")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
hash:
  wavelet_size: 24
  color_bin_bits: 12
catalog:
  driver: postgres
`)

	_, err := LoadFrom(viper.New(), path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CARDMATCH_CATALOG_PATH", "/tmp/override.gob")
	t.Setenv("CARDMATCH_BATCH_SIZE", "7")
	t.Setenv("CARDMATCH_API_MAX_TOP_N", "20")
	t.Setenv("CARDMATCH_DEBUG", "true")

	s, err := LoadFrom(viper.New(), writeConfig(t, "catalog:\n  path: /srv/cards.gob\n"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.gob", s.Catalog.Path, "environment beats config file")
	assert.Equal(t, 7, s.Builder.BatchSize)
	assert.Equal(t, 20, s.API.MaxTopN, "automatic env covers unbound keys")
	assert.True(t, s.Debug)
	assert.Equal(t, "debug", s.Logging.DefaultLevel)
}

func TestEnvironmentValidation(t *testing.T) {
	t.Setenv("CARDMATCH_PORT", "99999")

	_, err := LoadFrom(viper.New(), writeConfig(t, "debug: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CARDMATCH_PORT")
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fetch_timeout: 15s")

	s, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().Builder, s.Builder)

	err = WriteDefaultConfig(path)
	require.Error(t, err, "existing config must not be overwritten")
	assert.True(t, errors.IsConflict(err))
}

func TestValidateEnvHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fn      func(string) error
		value   string
		wantErr bool
	}{
		{"bool ok", validateEnvBool, "true", false},
		{"bool bad", validateEnvBool, "yes please", true},
		{"driver ok", validateEnvDriver, "mysql", false},
		{"driver bad", validateEnvDriver, "postgres", true},
		{"port ok", validateEnvPort, "5001", false},
		{"port zero", validateEnvPort, "0", true},
		{"duration ok", validateEnvDuration, "250ms", false},
		{"duration negative", validateEnvDuration, "-1s", true},
		{"url ok", validateEnvURL, "https://api.tcgdex.net/v2", false},
		{"url relative", validateEnvURL, "/v2", true},
		{"batch ok", validateEnvPositiveInt, "50", false},
		{"batch zero", validateEnvPositiveInt, "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.fn(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
