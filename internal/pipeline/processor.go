package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
)

// NewProcessor creates the logic that handles the "Fan-Out": look up the
// recipient's Expo tokens, dispatch, then clean up tokens Expo rejected.
func NewProcessor(
	dispatcher dispatch.Dispatcher,
	tokenStore dispatch.TokenStore,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notification.NotificationRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *notification.NotificationRequest) error {
		procLogger := logger.With(
			"recipient_id", request.RecipientID.String(),
			"pubsub_msg_id", original.ID,
		)

		// The incoming request has the Content, but the Store has the Tokens.
		enrichedReq, err := tokenStore.Fetch(ctx, request.RecipientID)
		if err != nil {
			procLogger.Error("Failed to fetch device tokens", "err", err)
			return err
		}

		if len(enrichedReq.ExpoTokens) == 0 {
			procLogger.Info("No devices registered for user; dropping notification.")
			return nil
		}

		receipt, invalidTokens, err := dispatcher.Dispatch(ctx, request.RecipientID, enrichedReq.ExpoTokens, request.Content, request.DataPayload)

		// Self-Healing runs even when the dispatch failed part way.
		if len(invalidTokens) > 0 {
			procLogger.Info("Cleaning up invalid Expo tokens", "count", len(invalidTokens))
			for _, t := range invalidTokens {
				if err := tokenStore.UnregisterToken(ctx, request.RecipientID, t); err != nil {
					procLogger.Warn("Failed to delete Expo token", "token", t, "err", err)
				}
			}
		}

		if err != nil {
			procLogger.Error("Expo Dispatch failed", "err", err)
			return err // Retryable
		}
		procLogger.Info("Expo Dispatched", "receipt", receipt)
		return nil
	}
}
