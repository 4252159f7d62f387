// --- File: notificationservice/service.go ---
package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-expo-notification-service/internal/api"
	"github.com/tinywideclouds/go-expo-notification-service/internal/pipeline"
	"github.com/tinywideclouds/go-expo-notification-service/notificationservice/config"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// BackgroundWorker is a component with its own lifecycle that runs beside
// the pipeline, such as the receipt checker.
type BackgroundWorker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[notification.NotificationRequest]
	receiptChecker  BackgroundWorker
	logger          *slog.Logger
}

// New assembles the service. receiptChecker may be nil.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatcher dispatch.Dispatcher,
	tokenStore dispatch.TokenStore,
	receiptChecker BackgroundWorker,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(dispatcher, tokenStore, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.NotificationRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API (Token Registration)
	tokenAPI := api.NewTokenAPI(tokenStore, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/register/expo", tokenAPI.RegisterExpo)
	handle("POST /api/v1/unregister/expo", tokenAPI.UnregisterExpo)

	// CORS preflight for the API namespace; the middleware writes the headers.
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		receiptChecker:  receiptChecker,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	if w.receiptChecker != nil {
		if err := w.receiptChecker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start receipt checker: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.receiptChecker != nil {
		if err := w.receiptChecker.Stop(ctx); err != nil {
			w.logger.Error("Receipt checker shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
