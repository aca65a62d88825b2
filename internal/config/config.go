// Package config loads runtime configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rezonia/xrechnung-engine/internal/datev"
	"github.com/rezonia/xrechnung-engine/internal/vat"
)

// Config is the full runtime configuration.
type Config struct {
	// Server
	ServerHost string
	ServerPort int

	// VIES
	ViesEnabled  bool
	ViesTimeout  time.Duration
	ViesEndpoint string

	// GoBD
	GoBDTolerance float64

	// DATEV header defaults
	DatevBeraternummer    string
	DatevMandantennummer  string
	DatevSachkontenlaenge int
	DatevEncoding         string

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present; its absence is not an
// error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		ViesEnabled:  getEnvBool("VIES_ENABLED", false),
		ViesTimeout:  getEnvDuration("VIES_TIMEOUT", vat.DefaultTimeout),
		ViesEndpoint: getEnv("VIES_ENDPOINT", vat.DefaultEndpoint),

		GoBDTolerance: getEnvFloat("GOBD_TOLERANCE", 0.02),

		DatevBeraternummer:    getEnv("DATEV_BERATERNUMMER", ""),
		DatevMandantennummer:  getEnv("DATEV_MANDANTENNUMMER", ""),
		DatevSachkontenlaenge: getEnvInt("DATEV_SACHKONTENLAENGE", 4),
		DatevEncoding:         getEnv("DATEV_ENCODING", datev.EncodingUTF8),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogOutput: getEnv("LOG_OUTPUT", "stderr"),
	}
}

// ViesConfig translates the loaded values into a validator config.
func (c *Config) ViesConfig() vat.Config {
	return vat.Config{
		Enabled:  c.ViesEnabled,
		Timeout:  c.ViesTimeout,
		Endpoint: c.ViesEndpoint,
	}
}

// DatevHeader builds the default DATEV header from the loaded values.
func (c *Config) DatevHeader() datev.HeaderConfig {
	return datev.HeaderConfig{
		Beraternummer:    c.DatevBeraternummer,
		Mandantennummer:  c.DatevMandantennummer,
		Sachkontenlaenge: c.DatevSachkontenlaenge,
		Encoding:         c.DatevEncoding,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
