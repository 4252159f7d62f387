package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const platformExpo = "expo"

// FirestoreStore implements TokenStore using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *FirestoreStore) RegisterToken(ctx context.Context, user urn.URN, token string) error {
	// Use hash of token as Doc ID to prevent duplicates and hot-spotting
	record := deviceRecord{
		Platform:  platformExpo,
		Token:     token,
		UpdatedAt: time.Now(),
	}
	if _, err := s.deviceRef(user, hashToken(token)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to register token: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UnregisterToken(ctx context.Context, user urn.URN, token string) error {
	_, err := s.deviceRef(user, hashToken(token)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to unregister token: %w", err)
	}
	return nil
}

// --- FAN-OUT (The Lookup) ---

func (s *FirestoreStore) Fetch(ctx context.Context, user urn.URN) (*notification.NotificationRequest, error) {
	iter := s.devicesCollection(user).Documents(ctx)
	defer iter.Stop()

	req := &notification.NotificationRequest{
		RecipientID: user,
		ExpoTokens:  make([]string, 0),
	}

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Skip corrupt rows rather than failing the whole fan-out.
			continue
		}
		// Rows from other platforms (legacy fcm/web registrations) are ignored.
		if record.Platform == platformExpo && record.Token != "" {
			req.ExpoTokens = append(req.ExpoTokens, record.Token)
		}
	}

	return req, nil
}

// --- Helpers ---

// deviceRef: users/{userID}/devices/{tokenHash}
func (s *FirestoreStore) deviceRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.devicesCollection(user).Doc(docID)
}

func (s *FirestoreStore) devicesCollection(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(user.String()).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
