// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// ServerHost is the host address the server will bind to.
	ServerHost string
	// ServerPort is the port number the server will listen on.
	ServerPort int

	// VaultFilePath is the path to the encrypted vault file (JSON).
	VaultFilePath string
	// MasterKeyPath is the path to the master key file.
	MasterKeyPath string
	// AuditLogPath is the path to the append-only audit log (JSON Lines).
	// The audit signing key lives in a sibling file next to it.
	AuditLogPath string
	// PolicyFilePath is the path to the declarative policy document (YAML).
	PolicyFilePath string

	// AEADAlgorithm selects the cipher for secrets at rest
	// ("chacha20-poly1305" or "aes-gcm").
	AEADAlgorithm string

	// RotationDays is the default rotation period for stored secrets.
	RotationDays int
	// GraceDays is the window during which previous key ids remain valid
	// after a rotation.
	GraceDays int
	// RotationInterval is how often the background scheduler scans for
	// secrets due for rotation.
	RotationInterval time.Duration

	// IntrusionThreshold is the failure count at which a client is banned.
	IntrusionThreshold int
	// IntrusionBanDuration is how long a banned client stays banned.
	IntrusionBanDuration time.Duration
	// CanarySecrets is a comma-separated list of decoy secret names;
	// empty means the built-in defaults are used.
	CanarySecrets string

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// RateLimitEnabled indicates whether per-client rate limiting is enabled.
	RateLimitEnabled bool
	// RateLimitRequestsPerSec is the number of requests allowed per second per client.
	RateLimitRequestsPerSec float64
	// RateLimitBurst is the burst size for per-client rate limiting.
	RateLimitBurst int

	// CORSEnabled indicates whether CORS is enabled.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Server configuration
		ServerHost: env.GetString("SERVER_HOST", "127.0.0.1"),
		ServerPort: env.GetInt("SERVER_PORT", 8200),

		// File layout
		VaultFilePath:  env.GetString("VAULT_FILE_PATH", "data/vault.json"),
		MasterKeyPath:  env.GetString("MASTER_KEY_PATH", "data/master.key"),
		AuditLogPath:   env.GetString("AUDIT_LOG_PATH", "data/audit.log"),
		PolicyFilePath: env.GetString("POLICY_FILE_PATH", "data/policy.yaml"),

		// Crypto
		AEADAlgorithm: env.GetString("AEAD_ALGORITHM", "chacha20-poly1305"),

		// Rotation
		RotationDays:     env.GetInt("ROTATION_DAYS", 90),
		GraceDays:        env.GetInt("GRACE_DAYS", 14),
		RotationInterval: env.GetDuration("ROTATION_INTERVAL_HOURS", 24, time.Hour),

		// Intrusion detection
		IntrusionThreshold:   env.GetInt("INTRUSION_THRESHOLD", 5),
		IntrusionBanDuration: env.GetDuration("INTRUSION_BAN_MINUTES", 15, time.Minute),
		CanarySecrets:        env.GetString("CANARY_SECRETS", ""),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Rate Limiting (per client)
		RateLimitEnabled:        env.GetBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerSec: env.GetFloat64("RATE_LIMIT_REQUESTS_PER_SEC", 10.0),
		RateLimitBurst:          env.GetInt("RATE_LIMIT_BURST", 20),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "vaultd"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8201),
	}
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	case "info", "warn", "error":
		return "release"
	default:
		return "release"
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}
