// Package config bootstraps the gateway from environment variables via
// getEnv/getEnvInt helpers plus godotenv, along with a path to the TOML
// file that declares gates, orders, and descriptions (see toml.go).
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the gateway's environment-derived settings.
type Config struct {
	// ProxyPort is the port the reverse proxy listens on, in front of the
	// destinations configured in GatesConfigPath.
	ProxyPort int

	// APIPort is the port the toll-payment sidecar API listens on.
	APIPort int

	// BaseURL is this gateway's public URL, used in HAL _links.
	BaseURL string

	// RealIPHeader, when set, is the header a suspect's client IP is read
	// from (e.g. "X-Forwarded-For") instead of the raw TCP peer address.
	// Use only behind a trusted L7 load balancer.
	RealIPHeader string

	// SecretKey is the operator-configured HMAC secret, decoded from
	// SECRET_KEY (hex), used only when GatesConfigPath does not itself
	// declare a secret_key_provider.
	SecretKey []byte

	// GatesConfigPath points at the TOML file declaring gates, orders, and
	// descriptions.
	GatesConfigPath string

	// LogLevel is "debug" or "info" (default).
	LogLevel string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present (dev convenience).
func Load() (*Config, error) {
	_ = godotenv.Load() // no-op if .env absent

	cfg := &Config{
		ProxyPort:       getEnvInt("PROXY_PORT", 8000),
		APIPort:         getEnvInt("API_PORT", 8080),
		BaseURL:         getEnv("GATEWAY_BASE_URL", "http://localhost:8080"),
		RealIPHeader:    getEnv("REAL_IP_HEADER", ""),
		GatesConfigPath: getEnv("GATES_CONFIG_PATH", "gates.toml"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if secretHex := getEnv("SECRET_KEY", ""); secretHex != "" {
		secret, err := hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("SECRET_KEY must be valid hex: %w", err)
		}
		if len(secret) < 16 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 16 bytes (32 hex chars)")
		}
		cfg.SecretKey = secret
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
