package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens

	Algorithm    string // Optional: JWT signing algorithm (RS256, ES256) (default: RS256)
	RSABits      int    // Optional: RSA key size for RS256 (default: 2048)
	NumKeys      int    // Optional: number of ephemeral signing keys (default: 1, max: 10)
	KeyFile      string // Optional: PEM private key; ephemeral keys when empty
	DatabaseFile string // Optional: path to SQLite database file (default: ./tokend.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)
	SeedFile     string // Optional: YAML seed; built-in defaults when empty

	RedisAddr     string // Optional: keep authorization codes in Redis when set
	RedisPassword string
	RedisDB       int

	// ResourceAudience is what /api/weatherforecast expects in aud.
	ResourceAudience []string

	AccessTokenTTL    time.Duration
	IdentityTokenTTL  time.Duration
	RefreshTokenTTL   time.Duration
	CodeTTL           time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	CacheTTL          time.Duration

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	MetricsEnabled       bool          // Expose /metrics (default: true)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the environment, after loading .env if one exists.
func LoadConfig() Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	cfg := Config{
		Issuer:       getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"),
		Algorithm:    getEnvOrDefault("AUTH_ALGORITHM", "RS256"),
		RSABits:      getEnvIntOrDefault("AUTH_RSA_BITS", 0),
		NumKeys:      getEnvIntOrDefault("AUTH_NUM_KEYS", 1),
		KeyFile:      os.Getenv("AUTH_KEY_FILE"),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "tokend.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		SeedFile:     os.Getenv("AUTH_SEED_FILE"),

		RedisAddr:     os.Getenv("AUTH_REDIS_ADDR"),
		RedisPassword: os.Getenv("AUTH_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("AUTH_REDIS_DB", 0),

		ResourceAudience: splitList(getEnvOrDefault("AUTH_RESOURCE_AUDIENCE", "weather-api")),

		AccessTokenTTL:    getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", 30*time.Minute),
		IdentityTokenTTL:  getEnvDurationOrDefault("AUTH_IDENTITY_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL:   getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", 24*time.Hour),
		CodeTTL:           getEnvDurationOrDefault("AUTH_CODE_TTL", 5*time.Minute),
		MaxFailedAttempts: getEnvIntOrDefault("AUTH_LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:   getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", 5*time.Minute),
		CacheTTL:          getEnvDurationOrDefault("AUTH_REGISTRY_CACHE_TTL", time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		MetricsEnabled:       getEnvBoolOrDefault("METRICS_ENABLED", true),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// splitList splits a comma separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
