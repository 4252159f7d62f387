// Package expopush adapts the Expo push client to the dispatch.Dispatcher contract.
package expopush

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/expo"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// PushClient defines the subset of the Expo client we use.
// This interface allows us to mock the client for unit testing.
type PushClient interface {
	SendMessages(ctx context.Context, msgs []expo.Message) (*expo.ResultHandler, error)
}

type Dispatcher struct {
	client   PushClient
	receipts dispatch.ReceiptStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. receipts may be nil, in which case
// ticket ids are not kept for later verification.
func NewDispatcher(client PushClient, receipts dispatch.ReceiptStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:   client,
		receipts: receipts,
		logger:   logger.With("component", "ExpoDispatcher"),
		now:      time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, recipient urn.URN, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	var invalidTokens []string
	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if expo.IsPushToken(t) {
			valid = append(valid, t)
			continue
		}
		// Never going to be accepted, so treat it like an unregistered device.
		invalidTokens = append(invalidTokens, t)
	}

	var (
		pending   []dispatch.PendingReceipt
		sent      int
		retryable int
		dropped   int
	)
	sentAt := d.now()

	for start := 0; start < len(valid); start += expo.MaxBatchSize {
		batch := valid[start:min(start+expo.MaxBatchSize, len(valid))]

		h, err := d.client.SendMessages(ctx, buildMessages(batch, content, data))
		if err != nil {
			if errors.Is(err, expo.ErrMessageTooBig) {
				// Resending the same payload can never succeed.
				d.logger.Error("Expo rejected batch as too big (dropping)", "err", err)
				dropped += len(batch)
				continue
			}
			// Tickets from earlier batches were accepted and still need checking.
			d.savePending(ctx, pending)
			return "", invalidTokens, fmt.Errorf("expo transport failed: %w", err)
		}

		outcomes := h.Outcomes()
		for idx, outcome := range outcomes {
			if idx >= len(batch) {
				d.logger.Warn("Expo returned more tickets than messages", "tickets", len(outcomes), "messages", len(batch))
				break
			}
			token := batch[idx]

			if outcome.Err == nil {
				sent++
				if outcome.ReceiptID != "" {
					pending = append(pending, dispatch.PendingReceipt{
						ID:          outcome.ReceiptID,
						RecipientID: recipient.String(),
						Token:       token,
						SentAt:      sentAt,
					})
				}
				continue
			}

			switch {
			case errors.Is(outcome.Err, expo.ErrDeviceNotRegistered):
				invalidTokens = append(invalidTokens, token)
			case errors.Is(outcome.Err, expo.ErrMessageRateExceeded), errors.Is(outcome.Err, expo.ErrInternalServerError):
				retryable++
			default:
				d.logger.Warn("Expo rejected message", "token", token, "err", outcome.Err)
				dropped++
			}
		}
	}

	d.savePending(ctx, pending)

	if retryable > 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryable)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d dropped:%d", sent, len(invalidTokens), dropped)
	return receipt, invalidTokens, nil
}

func (d *Dispatcher) savePending(ctx context.Context, pending []dispatch.PendingReceipt) {
	if d.receipts == nil || len(pending) == 0 {
		return
	}
	// Losing receipts only delays token cleanup, so this never fails the dispatch.
	if err := d.receipts.SavePending(ctx, pending); err != nil {
		d.logger.Warn("Failed to save pending receipts", "count", len(pending), "err", err)
	}
}

func buildMessages(tokens []string, content notification.NotificationContent, data map[string]string) []expo.Message {
	var payload map[string]any
	if len(data) > 0 {
		payload = make(map[string]any, len(data))
		for k, v := range data {
			payload[k] = v
		}
	}

	msgs := make([]expo.Message, len(tokens))
	for i, token := range tokens {
		msgs[i] = expo.Message{
			To:        expo.Recipients{token},
			Title:     content.Title,
			Subtitle:  content.Subtitle,
			Body:      content.Body,
			Sound:     content.Sound,
			Badge:     content.Badge,
			ChannelID: content.ChannelID,
			Priority:  expo.Priority(content.Priority),
			Data:      payload,
		}
	}
	return msgs
}
