// --- File: notificationservice/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/expo"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TokenTTL time.Duration
}

type ExpoConfig struct {
	BaseURL     string
	AccessToken string
	Gzip        bool
	Timeout     time.Duration
}

type ReceiptsConfig struct {
	Enabled   bool
	Interval  time.Duration
	Delay     time.Duration
	BatchSize int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Expo       ExpoConfig
	Receipts   ReceiptsConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Expo Overrides
	if val := os.Getenv("EXPO_BASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_BASE_URL", "source", "env")
		cfg.Expo.BaseURL = val
	}
	if val := os.Getenv("EXPO_ACCESS_TOKEN"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_ACCESS_TOKEN", "source", "env")
		cfg.Expo.AccessToken = val
	}
	if val := os.Getenv("EXPO_GZIP"); val != "" {
		if gzip, err := strconv.ParseBool(val); err == nil {
			cfg.Expo.Gzip = gzip
		}
	}
	if val := os.Getenv("EXPO_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Expo.Timeout = d
		}
	}

	// Receipt Checker Overrides
	if val := os.Getenv("RECEIPTS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Receipts.Enabled = enabled
	}
	if val := os.Getenv("RECEIPTS_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Receipts.Interval = d
		}
	}
	if val := os.Getenv("RECEIPTS_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Receipts.Delay = d
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.TokenTTL <= 0 {
		cfg.Redis.TokenTTL = 24 * time.Hour
	}
	if cfg.Expo.BaseURL == "" {
		cfg.Expo.BaseURL = expo.DefaultBaseURL
	}
	if cfg.Expo.Timeout <= 0 {
		cfg.Expo.Timeout = 30 * time.Second
	}
	if cfg.Receipts.Interval <= 0 {
		cfg.Receipts.Interval = time.Minute
	}
	if cfg.Receipts.Delay <= 0 {
		cfg.Receipts.Delay = 15 * time.Minute
	}
	if cfg.Receipts.BatchSize <= 0 || cfg.Receipts.BatchSize > expo.MaxReceiptIDs {
		cfg.Receipts.BatchSize = expo.MaxReceiptIDs
	}
	if cfg.Receipts.Enabled && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("receipts require redis (set redis.enabled or REDIS_ADDR)")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
