package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port        string
	CORSOrigins string
	AppEnv      string

	// Observability
	SentryDSN        string
	LogRetentionDays int

	// Redis (optional, serializes guarded actions across instances)
	RedisURL     string
	GuardLockTTL time.Duration

	// Stripe
	StripeWebhookSecret   string
	StripePriceStudent    string
	StripePriceStudentPro string

	// Limits
	LimitsConfigPath string
	UnseededPolicy   string
	UsageRollover    time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "studyhub"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		AppEnv:      getEnv("APP_ENV", "development"),

		SentryDSN:        getEnv("SENTRY_DSN", ""),
		LogRetentionDays: parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),

		RedisURL:     getEnv("REDIS_URL", ""),
		GuardLockTTL: parseDuration(getEnv("GUARD_LOCK_TTL", "10s"), 10*time.Second),

		StripeWebhookSecret:   getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceStudent:    getEnv("STRIPE_PRICE_STUDENT", ""),
		StripePriceStudentPro: getEnv("STRIPE_PRICE_STUDENTPRO", ""),

		LimitsConfigPath: getEnv("LIMITS_CONFIG_PATH", ""),
		UnseededPolicy:   strings.ToLower(strings.TrimSpace(getEnv("UNSEEDED_POLICY", "allow"))),
		UsageRollover:    parseDuration(getEnv("USAGE_ROLLOVER", "720h"), 30*24*time.Hour),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// FailOpen reports whether features without a configured limit are allowed.
func (c *Config) FailOpen() bool {
	return c.UnseededPolicy != "deny"
}

// Validate rejects settings that would otherwise fall back silently.
func (c *Config) Validate() error {
	switch c.UnseededPolicy {
	case "allow", "deny":
	default:
		return fmt.Errorf("UNSEEDED_POLICY must be allow or deny, got %q", c.UnseededPolicy)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
