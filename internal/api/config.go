// Package api exposes the card matching operations over HTTP.
//
// Service holds the transport-agnostic operations (health, match, compute
// hash, add card, recognize). Controller binds them to echo handlers and
// Server owns the echo instance, its middleware and its lifecycle.
package api

import (
	"fmt"
	"time"

	"github.com/labstack/gommon/bytes"

	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "20M"
	DefaultPort            = 5001

	DefaultTopN      = 5
	DefaultMaxTopN   = 100
	DefaultThreshold = 30
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port int

	AllowedOrigins []string // CORS allowed origins

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // echo size string, e.g. "20M"

	Debug   bool
	Metrics bool // expose GET /metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		Metrics:         true,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	cfg.Host = settings.Server.Host
	cfg.Port = settings.Server.Port
	cfg.Metrics = settings.Server.Metrics
	cfg.Debug = settings.Debug
	if settings.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = settings.Server.ShutdownTimeout
	}
	if settings.API.BodyLimit != "" {
		cfg.BodyLimit = settings.API.BodyLimit
	}
	if len(settings.API.CORSOrigins) > 0 {
		cfg.AllowedOrigins = settings.API.CORSOrigins
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if _, err := bytes.Parse(c.BodyLimit); err != nil {
		return fmt.Errorf("invalid body limit %q: %w", c.BodyLimit, err)
	}
	return nil
}

// Address returns the address string for the server to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, body_limit=%s, metrics=%v, debug=%v",
		c.Address(), c.BodyLimit, c.Metrics, c.Debug)
}

// RequestDefaults are the request parameters applied when a caller omits them.
type RequestDefaults struct {
	HashType  imagehash.HashType
	TopN      int
	MaxTopN   int // upper bound for top_n
	Threshold int
}

// StandardRequestDefaults mirrors the shipped configuration.
func StandardRequestDefaults() RequestDefaults {
	return RequestDefaults{
		HashType:  imagehash.DefaultHashType,
		TopN:      DefaultTopN,
		MaxTopN:   DefaultMaxTopN,
		Threshold: DefaultThreshold,
	}
}

// DefaultsFromSettings reads request defaults from the api settings section.
func DefaultsFromSettings(s conf.APISettings) (RequestDefaults, error) {
	d := StandardRequestDefaults()
	t, err := imagehash.ParseHashType(s.DefaultHashType)
	if err != nil {
		return d, err
	}
	d.HashType = t
	if s.DefaultTopN > 0 {
		d.TopN = s.DefaultTopN
	}
	if s.MaxTopN > 0 {
		d.MaxTopN = s.MaxTopN
	}
	if s.DefaultThreshold >= 0 {
		d.Threshold = s.DefaultThreshold
	}
	return d, nil
}
