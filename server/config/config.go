package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/fencing-cv/server/pose"
	"go.uber.org/zap"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	ML        MLConfig        `json:"ml"`
	Security  SecurityConfig  `json:"security"`
	Database  DatabaseConfig  `json:"database"`
	Cache     CacheConfig     `json:"cache"`
	Processor ProcessorConfig `json:"processor"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

type MLConfig struct {
	BaseURL             string        `json:"base_url"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

type SecurityConfig struct {
	JWTSecretKey   string        `json:"-"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	MaxRequestSize int64         `json:"max_request_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHTTPS    bool          `json:"enable_https"`
	CertFile       string        `json:"cert_file"`
	KeyFile        string        `json:"key_file"`
}

// DatabaseConfig points at the SQLite history file. An empty path disables
// history.
type DatabaseConfig struct {
	Path string `json:"path"`
}

type CacheConfig struct {
	MaxItems int           `json:"max_items"`
	TTL      time.Duration `json:"ttl"`
}

type ProcessorConfig struct {
	Workers           int           `json:"workers"`
	QueueSize         int           `json:"queue_size"`
	ProcessingTimeout time.Duration `json:"processing_timeout"`
	JPEGQuality       int           `json:"jpeg_quality"`
	OverlayFeedback   bool          `json:"overlay_feedback"`
	DefaultPoseType   string        `json:"default_pose_type"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func LoadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		ML: MLConfig{
			BaseURL:             getEnv("ML_BASE_URL", "http://localhost:5000"),
			Timeout:             getEnvAsDuration("ML_TIMEOUT", 30*time.Second),
			MaxRetries:          getEnvAsInt("ML_MAX_RETRIES", 3),
			RetryDelay:          getEnvAsDuration("ML_RETRY_DELAY", 1*time.Second),
			HealthCheckInterval: getEnvAsDuration("ML_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Security: SecurityConfig{
			JWTSecretKey:   getEnv("JWT_SECRET_KEY", ""),
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 16*1024*1024), // 16MB
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
			EnableHTTPS:    getEnvAsBool("ENABLE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "fencing.db"),
		},
		Cache: CacheConfig{
			MaxItems: getEnvAsInt("CACHE_MAX_ITEMS", 256),
			TTL:      getEnvAsDuration("CACHE_TTL", 10*time.Minute),
		},
		Processor: ProcessorConfig{
			Workers:           getEnvAsInt("PROCESSOR_WORKERS", 4),
			QueueSize:         getEnvAsInt("PROCESSOR_QUEUE_SIZE", 64),
			ProcessingTimeout: getEnvAsDuration("PROCESSING_TIMEOUT", 45*time.Second),
			JPEGQuality:       getEnvAsInt("JPEG_QUALITY", 90),
			OverlayFeedback:   getEnvAsBool("ANALYSIS_OVERLAY_FEEDBACK", false),
			DefaultPoseType:   getEnv("DEFAULT_POSE_TYPE", string(pose.EnGarde)),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.ML.BaseURL == "" {
		errors = append(errors, "ML base URL is required")
	}

	if c.ML.MaxRetries < 0 {
		errors = append(errors, "ML max retries cannot be negative")
	}

	if c.Security.JWTSecretKey == "" {
		logger.Warn("JWT secret key not set, using random key")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Security.EnableHTTPS && (c.Security.CertFile == "" || c.Security.KeyFile == "") {
		errors = append(errors, "cert and key files are required when HTTPS is enabled")
	}

	if c.Database.Path == "" {
		logger.Warn("DB_PATH is empty, analysis history is disabled")
	}

	if c.Cache.MaxItems < 1 {
		errors = append(errors, "cache max items must be positive")
	}

	if c.Processor.Workers < 1 {
		errors = append(errors, "processor workers must be positive")
	}

	if c.Processor.QueueSize < 1 {
		errors = append(errors, "processor queue size must be positive")
	}

	if c.Processor.JPEGQuality < 1 || c.Processor.JPEGQuality > 100 {
		errors = append(errors, "JPEG quality must be between 1 and 100")
	}

	if _, err := pose.ParseStance(c.Processor.DefaultPoseType); err != nil {
		errors = append(errors, fmt.Sprintf("default pose type: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
