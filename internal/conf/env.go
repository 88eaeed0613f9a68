// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables. Every other
// key is still reachable through AutomaticEnv as CARDMATCH_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "CARDMATCH_DEBUG", validateEnvBool},

		{"catalog.driver", "CARDMATCH_CATALOG_DRIVER", validateEnvDriver},
		{"catalog.path", "CARDMATCH_CATALOG_PATH", validateEnvNonEmpty},
		{"catalog.sqlite_path", "CARDMATCH_CATALOG_SQLITE_PATH", validateEnvNonEmpty},
		{"catalog.mysql.host", "CARDMATCH_MYSQL_HOST", validateEnvNonEmpty},
		{"catalog.mysql.port", "CARDMATCH_MYSQL_PORT", validateEnvPort},
		{"catalog.mysql.username", "CARDMATCH_MYSQL_USERNAME", nil},
		{"catalog.mysql.password", "CARDMATCH_MYSQL_PASSWORD", nil},
		{"catalog.mysql.database", "CARDMATCH_MYSQL_DATABASE", validateEnvNonEmpty},

		{"server.port", "CARDMATCH_PORT", validateEnvPort},

		{"builder.batch_size", "CARDMATCH_BATCH_SIZE", validateEnvPositiveInt},
		{"builder.fetch_timeout", "CARDMATCH_FETCH_TIMEOUT", validateEnvDuration},

		{"tcgdex.base_url", "CARDMATCH_TCGDEX_URL", validateEnvURL},

		{"telemetry.sentry_dsn", "CARDMATCH_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvNonEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("must not be blank")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch value {
	case DriverFile, DriverSQLite, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("must be one of %s, %s, %s", DriverFile, DriverSQLite, DriverMySQL)
	}
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("must be a positive duration such as 15s")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}
