package expo

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Priority is the delivery priority of a message.
type Priority string

const (
	PriorityDefault Priority = "default"
	PriorityNormal  Priority = "normal"
	PriorityHigh    Priority = "high"
)

// Recipients holds the push tokens a message is addressed to. A single
// recipient is sent as a plain string, several as an array.
type Recipients []string

func (r Recipients) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = Recipients{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients should be a string or an array of strings, got %s", data)
	}
	*r = many
	return nil
}

// Message is a single push notification. Field contents are validated by
// the push service, not by this package.
type Message struct {
	To       Recipients     `json:"to"`
	Title    string         `json:"title,omitempty"`
	Subtitle string         `json:"subtitle,omitempty"`
	Body     string         `json:"body,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	// TTL is the number of seconds the message may be kept for redelivery.
	TTL int `json:"ttl,omitempty"`
	// Expiration is a unix epoch after which the message is dropped.
	Expiration int64    `json:"expiration,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
	// Badge is a pointer because zero clears the badge on iOS.
	Badge          *int   `json:"badge,omitempty"`
	ChannelID      string `json:"channelId,omitempty"`
	CategoryID     string `json:"categoryId,omitempty"`
	MutableContent bool   `json:"mutableContent,omitempty"`
}

var (
	pushTokenPattern = regexp.MustCompile(`^Expo(?:nent)?PushToken\[.+\]$`)
	uuidTokenPattern = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)
)

// IsPushToken reports whether token looks like an Expo push token.
func IsPushToken(token string) bool {
	return pushTokenPattern.MatchString(token) || uuidTokenPattern.MatchString(token)
}
