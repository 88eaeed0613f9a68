// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for every configuration key.
// Durations are strings so a written config.yaml stays readable.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("hash.perceptual_size", 32)
	v.SetDefault("hash.highfreq_factor", 8)
	v.SetDefault("hash.difference_size", 32)
	v.SetDefault("hash.wavelet_size", 32)
	v.SetDefault("hash.color_bin_bits", 8)

	v.SetDefault("catalog.driver", DriverFile)
	v.SetDefault("catalog.path", "data/card_hashes.gob")
	v.SetDefault("catalog.sqlite_path", "data/card_hashes.db")
	v.SetDefault("catalog.mysql.host", "localhost")
	v.SetDefault("catalog.mysql.port", 3306)
	v.SetDefault("catalog.mysql.username", "")
	v.SetDefault("catalog.mysql.password", "")
	v.SetDefault("catalog.mysql.database", "cardmatch")
	v.SetDefault("catalog.export_path", "data/card_hashes.csv")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.metrics", true)

	v.SetDefault("api.body_limit", "20M")
	v.SetDefault("api.default_hash_type", "perceptual")
	v.SetDefault("api.default_top_n", 5)
	v.SetDefault("api.max_top_n", 100)
	v.SetDefault("api.default_threshold", 30)
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("resolver.modern_prefixes", []string{"sv", "swsh", "sm", "xy"})
	v.SetDefault("resolver.modern_template", "https://assets.tcgdex.net/en/{set}/{number}/high.png")
	v.SetDefault("resolver.legacy_template", "https://images.pokemontcg.io/{set}/{number}_hires.png")
	v.SetDefault("resolver.fallback_template", "https://assets.tcgdex.net/en/{id}/high.png")

	v.SetDefault("builder.batch_size", 50)
	v.SetDefault("builder.start_from", 0)
	v.SetDefault("builder.limit", 0)
	v.SetDefault("builder.fetch_timeout", "15s")
	v.SetDefault("builder.delay", "100ms")

	v.SetDefault("tcgdex.base_url", "https://api.tcgdex.net/v2")
	v.SetDefault("tcgdex.language", "en")
	v.SetDefault("tcgdex.timeout", "15s")
	v.SetDefault("tcgdex.cache_ttl", "1h")
	v.SetDefault("tcgdex.user_agent", "cardmatch/1.0 (+https://github.com/tcgvision/cardmatch)")
	v.SetDefault("tcgdex.fill_release_dates", true)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/cardmatch.log")
	v.SetDefault("logging.file_output.level", "info")
	v.SetDefault("logging.file_output.buffer_size", 32*1024)
	v.SetDefault("logging.file_output.flush_interval", "5s")

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")
}
