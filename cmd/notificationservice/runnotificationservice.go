// --- File: cmd/notificationservice/runnotificationservice.go ---
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/joho/godotenv"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-expo-notification-service/internal/platform/expopush"
	"github.com/tinywideclouds/go-expo-notification-service/internal/receipts"
	"github.com/tinywideclouds/go-expo-notification-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-expo-notification-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/expo"

	"github.com/tinywideclouds/go-expo-notification-service/notificationservice"
	"github.com/tinywideclouds/go-expo-notification-service/notificationservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-expo-notification-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Token Store (Decorated) ---
	var tokenStore dispatch.TokenStore = fsStore.NewFirestoreStore(fsClient)
	logger.Info("TokenStore initialized", "type", "firestore")

	var receiptStore dispatch.ReceiptStore
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		tokenStore = cache.NewCachedTokenStore(tokenStore, redisClient, cfg.Redis.TokenTTL)
		logger.Info("TokenStore upgraded", "type", "redis_cached_firestore", "ttl", cfg.Redis.TokenTTL)

		if cfg.Receipts.Enabled {
			receiptStore = cache.NewRedisReceiptStore(redisClient.Redis())
		}
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT config discovery failed", "url", identityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Failed to create auth middleware", "err", err)
		os.Exit(1)
	}

	// --- Expo ---
	var transportOpts []expo.HTTPTransportOption
	if cfg.Expo.AccessToken != "" {
		transportOpts = append(transportOpts, expo.WithAccessToken(cfg.Expo.AccessToken))
	} else {
		logger.Warn("No Expo access token configured; enhanced push security must be off for this project.")
	}
	expoClient := expo.NewClient(
		expo.WithBaseURL(cfg.Expo.BaseURL),
		expo.WithTransport(expo.NewHTTPTransport(&http.Client{Timeout: cfg.Expo.Timeout}, transportOpts...)),
		expo.WithGzip(cfg.Expo.Gzip),
		expo.WithLogger(logger),
	)
	logger.Info("Expo client configured", "send_url", expoClient.SendURL(), "gzip", cfg.Expo.Gzip)

	dispatcher := expopush.NewDispatcher(expoClient, receiptStore, logger)

	// A nil *receipts.Checker must not become a non-nil interface.
	var receiptChecker notificationservice.BackgroundWorker
	if receiptStore != nil {
		receiptChecker = receipts.NewChecker(expoClient, receiptStore, tokenStore, receipts.Config{
			Interval:  cfg.Receipts.Interval,
			Delay:     cfg.Receipts.Delay,
			BatchSize: cfg.Receipts.BatchSize,
		}, logger)
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := notificationservice.New(
		cfg,
		consumer,
		dispatcher,
		tokenStore,
		receiptChecker,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 30,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub %s: %w", sub, err)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
