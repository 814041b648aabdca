package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	ServiceToken  string

	AdminEmail    string
	AdminPassword string

	OTLPEndpoint string

	Cloud CloudConfig

	RateLimit RateLimitConfig

	LimitsFile string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
}

type CloudConfig struct {
	OrganizationID string
	Metrics        CloudMetricsConfig
}

type CloudMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

type RateLimitConfig struct {
	Enabled   bool
	RedisAddr string
	Rate      int64
	Burst     int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "pantheon"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		ServiceToken:  strings.TrimSpace(getenv("SERVICE_TOKEN", "")),
		AdminEmail:    strings.ToLower(strings.TrimSpace(getenv("ADMIN_EMAIL", ""))),
		AdminPassword: getenv("ADMIN_PASSWORD", ""),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),
		Cloud: CloudConfig{
			OrganizationID: strings.TrimSpace(getenv("CLOUD_ORGANIZATION_ID", "")),
			Metrics: CloudMetricsConfig{
				Enabled:   getenvBool("CLOUD_METRICS_ENABLED", false),
				Exporter:  strings.ToLower(getenv("CLOUD_METRICS_EXPORTER", "")),
				Endpoint:  strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
				AuthToken: strings.TrimSpace(getenv("CLOUD_METRICS_AUTH_TOKEN", "")),
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:   getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr: getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			Rate:      getenvInt64("RATE_LIMIT_RATE", 50),
			Burst:     getenvInt64("RATE_LIMIT_BURST", 100),
		},
		LimitsFile:        getenv("LIMITS_FILE", ""),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pantheon"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
