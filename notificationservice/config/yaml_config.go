// --- File: notificationservice/config/yaml_config.go ---
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TokenTTL string `yaml:"token_ttl"`
}

type YamlExpoConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	Gzip        bool   `yaml:"gzip"`
	Timeout     string `yaml:"timeout"`
}

type YamlReceiptsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interval  string `yaml:"interval"`
	Delay     string `yaml:"delay"`
	BatchSize int    `yaml:"batch_size"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string             `yaml:"project_id"`
	ListenAddr             string             `yaml:"listen_addr"`
	TopicID                string             `yaml:"topic_id"`
	SubscriptionID         string             `yaml:"subscription_id"`
	SubscriptionDLQTopicID string             `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig     `yaml:"cors"`
	RedisConfig            YamlRedisConfig    `yaml:"redis"`
	ExpoConfig             YamlExpoConfig     `yaml:"expo"`
	ReceiptsConfig         YamlReceiptsConfig `yaml:"receipts"`
	NumPipelineWorkers     int                `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// Durations are Go duration strings ("15m"); empty means "use the default".
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	tokenTTL, err := parseOptionalDuration("redis.token_ttl", baseCfg.RedisConfig.TokenTTL)
	if err != nil {
		return nil, err
	}
	expoTimeout, err := parseOptionalDuration("expo.timeout", baseCfg.ExpoConfig.Timeout)
	if err != nil {
		return nil, err
	}
	receiptInterval, err := parseOptionalDuration("receipts.interval", baseCfg.ReceiptsConfig.Interval)
	if err != nil {
		return nil, err
	}
	receiptDelay, err := parseOptionalDuration("receipts.delay", baseCfg.ReceiptsConfig.Delay)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TokenTTL: tokenTTL,
		},
		Expo: ExpoConfig{
			BaseURL:     baseCfg.ExpoConfig.BaseURL,
			AccessToken: baseCfg.ExpoConfig.AccessToken,
			Gzip:        baseCfg.ExpoConfig.Gzip,
			Timeout:     expoTimeout,
		},
		Receipts: ReceiptsConfig{
			Enabled:   baseCfg.ReceiptsConfig.Enabled,
			Interval:  receiptInterval,
			Delay:     receiptDelay,
			BatchSize: baseCfg.ReceiptsConfig.BatchSize,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}

func parseOptionalDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
