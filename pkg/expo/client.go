// Package expo is a client for the Expo push notification service. It sends
// message batches, looks up delivery receipts and classifies the service's
// responses into typed errors.
package expo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL is the push API root; send and getReceipts hang off it.
const DefaultBaseURL = "https://exp.host/--/api/v2/push"

// Client talks to the push service. It holds no per-call state and is safe
// for concurrent use when its Transport is.
type Client struct {
	baseURL    string
	transport  Transport
	gzip       bool
	newHandler func() *ResultHandler
	unique     bool
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithGzip asks the service for gzip or deflate encoded responses.
func WithGzip(enabled bool) Option {
	return func(c *Client) {
		c.gzip = enabled
	}
}

func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithResultHandler supplies the handler each call classifies into. The
// factory is invoked once per call; returning a shared handler accumulates
// results across calls and is then the caller's to synchronise.
func WithResultHandler(factory func() *ResultHandler) Option {
	return func(c *Client) {
		c.newHandler = factory
	}
}

// WithUniqueInvalidTokens makes the default handler record each invalid token
// once. It has no effect together with WithResultHandler.
func WithUniqueInvalidTokens() Option {
	return func(c *Client) {
		c.unique = true
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	if c.newHandler == nil {
		var handlerOpts []HandlerOption
		if c.unique {
			handlerOpts = append(handlerOpts, UniqueInvalidTokens())
		}
		c.newHandler = func() *ResultHandler { return NewResultHandler(handlerOpts...) }
	}
	c.logger = c.logger.With("component", "ExpoClient")
	return c
}

// SendURL is the endpoint SendMessages posts to.
func (c *Client) SendURL() string {
	return c.baseURL + "/send"
}

// ReceiptsURL is the endpoint VerifyDeliveries posts to.
func (c *Client) ReceiptsURL() string {
	return c.baseURL + "/getReceipts"
}

// SendMessages submits one batch. The returned error is non-nil only when
// the request failed as a whole; failures of individual messages are
// collected in the handler.
func (c *Client) SendMessages(ctx context.Context, msgs []Message) (*ResultHandler, error) {
	if err := ValidateBatch(msgs); err != nil {
		return nil, err
	}
	return c.post(ctx, c.SendURL(), msgs)
}

// VerifyDeliveries looks up the receipts for ticket ids returned by an
// earlier SendMessages call.
func (c *Client) VerifyDeliveries(ctx context.Context, receiptIDs []string) (*ResultHandler, error) {
	payload := struct {
		IDs []string `json:"ids"`
	}{IDs: receiptIDs}
	return c.post(ctx, c.ReceiptsURL(), payload)
}

// Publish sends one batch and reports at most one error: the call-level
// failure, or else the most severe per-message error.
//
// Deprecated: use SendMessages, which reports every failed message.
func (c *Client) Publish(ctx context.Context, msgs []Message) error {
	h, err := c.SendMessages(ctx, msgs)
	if err != nil {
		return err
	}
	if top := mostSevere(h.Errors()); top != nil {
		return top
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload any) (*ResultHandler, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	raw, err := c.transport.Post(ctx, url, &Request{Body: body, Header: c.headers()})
	if err != nil {
		c.logger.Error("push service request failed", "url", url, "err", err)
		return nil, err
	}

	h, err := Classify(raw, c.newHandler())
	if err != nil {
		c.logger.Warn("push service rejected request", "url", url, "response", raw.String(), "err", err)
		return nil, err
	}
	c.logger.Debug("push service responded",
		"url", url,
		"status", raw.StatusCode,
		"receipts", len(h.receiptIDs),
		"errors", len(h.errs),
	)
	return h, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if c.gzip {
		h.Set("Accept-Encoding", "gzip, deflate")
	}
	return h
}
