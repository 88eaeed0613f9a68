// Package conf loads cardmatch settings from config.yaml, CARDMATCH_* environment
// variables and command line flags, in increasing order of precedence.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/logger"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CARDMATCH"

// Catalog storage drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// HashSettings sizes the four fingerprints. Every record in a catalog shares them.
type HashSettings struct {
	PerceptualSize int `yaml:"perceptual_size" mapstructure:"perceptual_size"` // side of the kept DCT block
	HighFreqFactor int `yaml:"highfreq_factor" mapstructure:"highfreq_factor"` // DCT input grid is PerceptualSize*HighFreqFactor
	DifferenceSize int `yaml:"difference_size" mapstructure:"difference_size"`
	WaveletSize    int `yaml:"wavelet_size" mapstructure:"wavelet_size"`
	ColorBinBits   int `yaml:"color_bin_bits" mapstructure:"color_bin_bits"`
}

// MySQLSettings configures the mysql catalog driver.
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// CatalogSettings selects where the hash catalog lives.
type CatalogSettings struct {
	Driver     string        `yaml:"driver" mapstructure:"driver"`           // file, sqlite or mysql
	Path       string        `yaml:"path" mapstructure:"path"`               // gob snapshot for the file driver
	SQLitePath string        `yaml:"sqlite_path" mapstructure:"sqlite_path"` // database file for the sqlite driver
	MySQL      MySQLSettings `yaml:"mysql" mapstructure:"mysql"`
	ExportPath string        `yaml:"export_path" mapstructure:"export_path"` // flattened CSV export
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics" mapstructure:"metrics"` // expose GET /metrics
}

// Address returns host:port for the listener.
func (s ServerSettings) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APISettings holds request defaults and limits for the matching endpoints.
type APISettings struct {
	BodyLimit        string   `yaml:"body_limit" mapstructure:"body_limit"` // echo size string, e.g. "20M"
	DefaultHashType  string   `yaml:"default_hash_type" mapstructure:"default_hash_type"`
	DefaultTopN      int      `yaml:"default_top_n" mapstructure:"default_top_n"`
	MaxTopN          int      `yaml:"max_top_n" mapstructure:"max_top_n"`
	DefaultThreshold int      `yaml:"default_threshold" mapstructure:"default_threshold"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ResolverSettings configures how card ids map to display names and image URLs.
type ResolverSettings struct {
	ModernPrefixes   []string `yaml:"modern_prefixes" mapstructure:"modern_prefixes"`
	ModernTemplate   string   `yaml:"modern_template" mapstructure:"modern_template"`
	LegacyTemplate   string   `yaml:"legacy_template" mapstructure:"legacy_template"`
	FallbackTemplate string   `yaml:"fallback_template" mapstructure:"fallback_template"`
}

// BuilderSettings configures the catalog crawler.
type BuilderSettings struct {
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`
	StartFrom    int           `yaml:"start_from" mapstructure:"start_from"` // index into the sorted set list
	Limit        int           `yaml:"limit" mapstructure:"limit"`           // 0 means unlimited
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	Delay        time.Duration `yaml:"delay" mapstructure:"delay"` // minimum spacing between image fetches
}

// TCGdexSettings configures the upstream card database client.
type TCGdexSettings struct {
	BaseURL          string        `yaml:"base_url" mapstructure:"base_url"`
	Language         string        `yaml:"language" mapstructure:"language"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	UserAgent        string        `yaml:"user_agent" mapstructure:"user_agent"`
	FillReleaseDates bool          `yaml:"fill_release_dates" mapstructure:"fill_release_dates"`
}

// TelemetrySettings configures optional Sentry error reporting.
type TelemetrySettings struct {
	SentryDSN   string `yaml:"sentry_dsn" mapstructure:"sentry_dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// Settings is the root configuration.
type Settings struct {
	Debug     bool                 `yaml:"debug" mapstructure:"debug"`
	Hash      HashSettings         `yaml:"hash" mapstructure:"hash"`
	Catalog   CatalogSettings      `yaml:"catalog" mapstructure:"catalog"`
	Server    ServerSettings       `yaml:"server" mapstructure:"server"`
	API       APISettings          `yaml:"api" mapstructure:"api"`
	Resolver  ResolverSettings     `yaml:"resolver" mapstructure:"resolver"`
	Builder   BuilderSettings      `yaml:"builder" mapstructure:"builder"`
	TCGdex    TCGdexSettings       `yaml:"tcgdex" mapstructure:"tcgdex"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`

	// ConfigFile is the file the settings were read from, empty when only defaults applied.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// Load reads settings into the global viper instance, which cobra flags are bound to.
// An empty configFile searches the default locations; a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	return LoadFrom(viper.GetViper(), configFile)
}

// LoadFrom reads settings using v.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return settings, nil
}

// initViper installs defaults and environment bindings and reads the config file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			FileContext(configFile).
			Build()
	}

	return nil
}

// DefaultConfigPaths lists the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cardmatch"))
	}
	return append(paths, "/etc/cardmatch")
}

// DefaultSettings returns the settings produced by defaults alone.
func DefaultSettings() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	return settings
}

// WriteDefaultConfig writes a config.yaml holding every default to path.
// An existing file is never overwritten.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path).
			Component("conf").
			Category(errors.CategoryConflict).
			Build()
	}

	v := viper.New()
	setDefaultConfig(v)
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return errors.New(fmt.Errorf("error encoding default config: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.FileError(fmt.Errorf("error creating directories for config file: %w", err), path)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return errors.FileError(fmt.Errorf("error writing default config file: %w", err), path)
	}

	return nil
}
