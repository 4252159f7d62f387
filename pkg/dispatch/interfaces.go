// --- File: pkg/dispatch/interfaces.go ---
package dispatch

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Dispatcher defines the contract for a component that can send notifications
// to a batch of Expo push tokens belonging to one recipient.
type Dispatcher interface {
	// Dispatch returns a short receipt summary and the tokens the push
	// service reported as no longer registered. Tokens are returned even
	// when err is non-nil so the caller can clean them up.
	Dispatch(ctx context.Context, recipient urn.URN, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error)
}

// TokenStore defines the contract for managing user device tokens.
// It allows the service to remember "where" to send notifications for a user.
type TokenStore interface {
	// RegisterToken adds or updates a device token for a specific user.
	// Registering the same token twice is a no-op.
	RegisterToken(ctx context.Context, user urn.URN, token string) error

	// UnregisterToken removes a token. Removing an unknown token is not an error.
	UnregisterToken(ctx context.Context, user urn.URN, token string) error

	// Fetch returns a request with ExpoTokens populated for the user.
	Fetch(ctx context.Context, user urn.URN) (*notification.NotificationRequest, error)
}

// PendingReceipt is a push ticket whose delivery receipt has not been checked yet.
type PendingReceipt struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Token       string    `json:"token"`
	SentAt      time.Time `json:"sentAt"`
}

// ReceiptStore keeps ticket ids between sending and receipt verification.
type ReceiptStore interface {
	SavePending(ctx context.Context, receipts []PendingReceipt) error
	// ListDue returns up to limit receipts sent at or before the cutoff,
	// oldest first.
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]PendingReceipt, error)
	Remove(ctx context.Context, ids []string) error
}
