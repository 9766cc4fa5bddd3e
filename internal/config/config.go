package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hrms/internal/logger"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the API process
type Config struct {
	Port    string
	GinMode string

	Database DatabaseConfig
	JWT      JWTConfig

	PermissionCacheTTL time.Duration
	RedisAddress       string
	CORSOrigins        []string
	RateLimitPerMinute int
	PhoneRegion        string
	LogLevel           string

	ReconciliationDateWindow time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the postgres connection string understood by gorm's postgres driver
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// IsRelease reports whether gin runs in release (production) mode
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// Load reads configs/.env (if present) and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		logger.Get().Info("no configs/.env file found, using process environment")
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:    stringFromEnv("PORT", "8080"),
		GinMode: os.Getenv("GIN_MODE"),
		Database: DatabaseConfig{
			Host:            stringFromEnv("DB_HOST", "localhost"),
			Port:            stringFromEnv("DB_PORT", "5432"),
			User:            stringFromEnv("DB_USER", "postgres"),
			Password:        stringFromEnv("DB_PASSWORD", "postgres"),
			Name:            stringFromEnv("DB_NAME", "postgres"),
			SSLMode:         stringFromEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		},
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		RateLimitPerMinute: intFromEnv("RATE_LIMIT_PER_MINUTE", 20),
		PhoneRegion:        stringFromEnv("PHONE_REGION", "IN"),
		LogLevel:           stringFromEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.JWT.AccessTTL, err = durationFromEnv("ACCESS_TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.JWT.RefreshTTL, err = durationFromEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PermissionCacheTTL, err = durationFromEnv("PERMISSION_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	cfg.ReconciliationDateWindow = time.Duration(intFromEnv("RECONCILIATION_DATE_WINDOW_DAYS", 3)) * 24 * time.Hour

	accessSecret := os.Getenv("JWT_ACCESS_SECRET")
	refreshSecret := os.Getenv("JWT_REFRESH_SECRET")
	if accessSecret == "" || refreshSecret == "" {
		if cfg.IsRelease() {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required in release mode")
		}
		// Development fallback only
		if accessSecret == "" {
			accessSecret = "dev_access_secret_change_me"
		}
		if refreshSecret == "" {
			refreshSecret = "dev_refresh_secret_change_me"
		}
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("access and refresh token secrets must differ")
	}
	cfg.JWT.AccessSecret = []byte(accessSecret)
	cfg.JWT.RefreshSecret = []byte(refreshSecret)

	origins := stringFromEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	return cfg, nil
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
