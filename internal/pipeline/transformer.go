// --- File: internal/pipeline/transformer.go ---
// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
)

// NotificationRequestTransformer is a dataflow Transformer that unmarshals
// and validates a raw message payload into a notification.NotificationRequest.
// URN validation happens inside the request's UnmarshalJSON.
func NotificationRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notification.NotificationRequest, bool, error) {
	var nativeReq notification.NotificationRequest

	if err := json.Unmarshal(msg.Payload, &nativeReq); err != nil {
		// skip=true lets the StreamingService handle the Nack/DLQ logic.
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}

	// Tokens come from the store, never from the publisher.
	nativeReq.ExpoTokens = nil

	return &nativeReq, false, nil
}
