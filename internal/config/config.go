package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Retention modes for location history.
const (
	RetentionInline = "inline"
	RetentionSweep  = "sweep"
)

// Spatial index backends.
const (
	SpatialIndexRedis  = "redis"
	SpatialIndexMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Auth     AuthConfig
	Log      LogConfig
	Tracking TrackingConfig
	Kafka    KafkaConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	RunMigrations bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AuthConfig holds JWT settings. When AdminEmail and AdminPassword are set,
// an admin account is created at startup if missing.
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

// MinJWTSecretLength is the shortest accepted HMAC signing secret, in bytes.
const MinJWTSecretLength = 32

// ErrJWTSecretMissing is returned when JWT_SECRET is unset.
var ErrJWTSecretMissing = errors.New("JWT_SECRET is required")

// Validate rejects a missing or short signing secret.
func (a AuthConfig) Validate() error {
	if a.JWTSecret == "" {
		return ErrJWTSecretMissing
	}
	if len(a.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLength, len(a.JWTSecret))
	}
	return nil
}

// LogConfig holds logging configuration. An empty File logs to stdout only.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// TrackingConfig holds the location tracking policy.
type TrackingConfig struct {
	HistoryCap      int
	RetentionMode   string
	SweepInterval   time.Duration
	RejectStale     bool
	SpatialIndex    string
	GridCellDegrees float64
}

// KafkaConfig holds the location event publisher settings.
// No brokers disables publishing to Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load loads configuration from environment variables, reading a .env file
// first when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			CORSOrigins:  getListEnv("SERVER_CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "courier"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			RunMigrations: getBoolEnv("DB_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "courier-tracking"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getDurationEnv("JWT_TTL", 24*time.Hour),
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getIntEnv("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 7),
		},
		Tracking: TrackingConfig{
			HistoryCap:      getIntEnv("LOCATION_HISTORY_CAP", 1000),
			RetentionMode:   getEnv("RETENTION_MODE", RetentionInline),
			SweepInterval:   getDurationEnv("RETENTION_SWEEP_INTERVAL", 0),
			RejectStale:     getBoolEnv("LOCATION_REJECT_STALE", false),
			SpatialIndex:    getEnv("SPATIAL_INDEX", SpatialIndexRedis),
			GridCellDegrees: getFloatEnv("SPATIAL_GRID_CELL_DEGREES", 0.05),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_LOCATION_TOPIC", "driver.location.updated"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
