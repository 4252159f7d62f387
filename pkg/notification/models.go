// Package notification contains the public domain models for the
// notification service.
package notification

import (
	"encoding/json"
	"fmt"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// NotificationContent is the user visible part of a notification.
type NotificationContent struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Body     string `json:"body,omitempty"`
	Sound    string `json:"sound,omitempty"`
	// Badge is nil when the badge should be left untouched.
	Badge     *int   `json:"badge,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

// NotificationRequest is the message consumed from Pub/Sub. Publishers only
// set the recipient, content and data; ExpoTokens is filled by the token
// store when the request is fanned out.
type NotificationRequest struct {
	RecipientID urn.URN
	Content     NotificationContent
	DataPayload map[string]string
	ExpoTokens  []string
}

type notificationRequestJSON struct {
	RecipientID string              `json:"recipientId"`
	Content     NotificationContent `json:"content"`
	DataPayload map[string]string   `json:"dataPayload,omitempty"`
	ExpoTokens  []string            `json:"expoTokens,omitempty"`
}

func (r NotificationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(notificationRequestJSON{
		RecipientID: r.RecipientID.String(),
		Content:     r.Content,
		DataPayload: r.DataPayload,
		ExpoTokens:  r.ExpoTokens,
	})
}

// UnmarshalJSON validates the recipient URN as part of decoding.
func (r *NotificationRequest) UnmarshalJSON(data []byte) error {
	var wire notificationRequestJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.RecipientID == "" {
		return fmt.Errorf("recipientId is required")
	}
	recipient, err := urn.Parse(wire.RecipientID)
	if err != nil {
		return fmt.Errorf("invalid recipientId %q: %w", wire.RecipientID, err)
	}
	*r = NotificationRequest{
		RecipientID: recipient,
		Content:     wire.Content,
		DataPayload: wire.DataPayload,
		ExpoTokens:  wire.ExpoTokens,
	}
	return nil
}
