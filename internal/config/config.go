package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	App       AppConfig
	NATS      NATSConfig
	AWS       AWSConfig
	SMS       SMSConfig
	Push      PushConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AppConfig holds application settings
type AppConfig struct {
	Environment string
	// MinTokenLength guards against sentinel strings stored where a
	// device token belongs; values at or below it are never sent to.
	MinTokenLength int
}

// NATSConfig holds NATS settings
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// AWSConfig holds AWS credentials and settings (for SNS)
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SMSConfig holds visitor SMS confirmation settings
type SMSConfig struct {
	// Sender ID or origination number for AWS SNS
	SNSFrom string
	// Enabled gates the decision-confirmation SMS to visitors
	Enabled bool
}

// PushConfig holds push notification settings
type PushConfig struct {
	FCMProjectID   string
	FCMCredentials string
}

// RedisConfig holds Redis settings (broadcast rate limiting)
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RateLimitConfig holds broadcast rate limit settings
type RateLimitConfig struct {
	Enabled              bool
	ResidencyHourlyLimit int
	ResidencyDailyLimit  int
}

// Load loads configuration from environment
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8090),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "visitsafe"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		App: AppConfig{
			Environment:    getEnv("ENVIRONMENT", "development"),
			MinTokenLength: getEnvInt("MIN_TOKEN_LENGTH", 10),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects: getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited reconnects
			ReconnectWait: time.Duration(getEnvInt("NATS_RECONNECT_WAIT_SECONDS", 2)) * time.Second,
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-south-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		SMS: SMSConfig{
			SNSFrom: getEnv("AWS_SNS_FROM", ""),
			Enabled: getEnvBool("VISITOR_SMS_ENABLED", false),
		},
		Push: PushConfig{
			FCMProjectID:   getEnv("FCM_PROJECT_ID", ""),
			FCMCredentials: getEnv("FCM_CREDENTIALS_JSON", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:              getEnvBool("BROADCAST_RATELIMIT_ENABLED", true),
			ResidencyHourlyLimit: getEnvInt("BROADCAST_HOURLY_LIMIT", 60),
			ResidencyDailyLimit:  getEnvInt("BROADCAST_DAILY_LIMIT", 500),
		},
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
