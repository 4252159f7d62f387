// Package receipts verifies delivery of sent push tickets and prunes tokens
// that the push service reports as no longer registered.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/expo"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// ReceiptClient defines the subset of the Expo client the checker uses.
type ReceiptClient interface {
	VerifyDeliveries(ctx context.Context, receiptIDs []string) (*expo.ResultHandler, error)
}

// Config controls the checker loop.
type Config struct {
	// Interval between checks.
	Interval time.Duration
	// Delay is how long after sending a receipt is first looked up. Expo
	// recommends waiting about 15 minutes.
	Delay time.Duration
	// BatchSize caps the receipts handled per check.
	BatchSize int
	// MaxAge drops receipts the service never answered for. Expo keeps
	// receipts for 24 hours.
	MaxAge time.Duration
}

// Summary reports what one check did.
type Summary struct {
	Checked      int
	Failed       int
	Unregistered int
	Expired      int
}

type Checker struct {
	client   ReceiptClient
	receipts dispatch.ReceiptStore
	tokens   dispatch.TokenStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChecker(client ReceiptClient, receipts dispatch.ReceiptStore, tokens dispatch.TokenStore, cfg Config, logger *slog.Logger) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = expo.MaxReceiptIDs
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return &Checker{
		client:   client,
		receipts: receipts,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger.With("component", "ReceiptChecker"),
		now:      time.Now,
	}
}

// Start runs checks every Interval until Stop is called or ctx is done.
func (c *Checker) Start(ctx context.Context) error {
	if c.cancel != nil {
		return errors.New("receipt checker already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				summary, err := c.RunOnce(loopCtx)
				if err != nil {
					c.logger.Error("Receipt check failed", "err", err)
					continue
				}
				if summary.Checked > 0 || summary.Expired > 0 {
					c.logger.Info("Receipt check complete",
						"checked", summary.Checked,
						"failed", summary.Failed,
						"unregistered", summary.Unregistered,
						"expired", summary.Expired,
					)
				}
			}
		}
	}()
	c.logger.Info("Receipt checker started", "interval", c.cfg.Interval, "delay", c.cfg.Delay)
	return nil
}

// Stop cancels the loop and waits for an in-flight check, or for ctx.
func (c *Checker) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce checks every due receipt once. A top-level error from the push
// service leaves the affected receipts pending for the next run.
func (c *Checker) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	now := c.now()

	due, err := c.receipts.ListDue(ctx, now.Add(-c.cfg.Delay), c.cfg.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list due receipts: %w", err)
	}
	if len(due) == 0 {
		return summary, nil
	}

	byID := make(map[string]dispatch.PendingReceipt, len(due))
	ids := make([]string, 0, len(due))
	for _, r := range due {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	var firstErr error
	for _, chunk := range expo.ChunkReceiptIDs(ids) {
		h, err := c.client.VerifyDeliveries(ctx, chunk)
		if err != nil {
			c.logger.Warn("Receipt lookup failed; will retry", "count", len(chunk), "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("receipt lookup failed: %w", err)
			}
			continue
		}

		answered := make(map[string]bool, len(chunk))
		var resolved []string
		for _, outcome := range h.Outcomes() {
			pending, ok := byID[outcome.ReceiptID]
			if !ok {
				continue
			}
			answered[outcome.ReceiptID] = true
			resolved = append(resolved, outcome.ReceiptID)
			summary.Checked++

			if outcome.Err == nil {
				continue
			}
			summary.Failed++
			if errors.Is(outcome.Err, expo.ErrDeviceNotRegistered) {
				if c.unregister(ctx, pending) {
					summary.Unregistered++
				}
				continue
			}
			c.logger.Warn("Delivery failed", "receipt_id", pending.ID, "err", outcome.Err)
		}

		// Receipts the service has not produced yet stay pending until MaxAge.
		for _, id := range chunk {
			if answered[id] {
				continue
			}
			if now.Sub(byID[id].SentAt) > c.cfg.MaxAge {
				resolved = append(resolved, id)
				summary.Expired++
			}
		}

		if len(resolved) > 0 {
			if err := c.receipts.Remove(ctx, resolved); err != nil {
				return summary, fmt.Errorf("failed to remove checked receipts: %w", err)
			}
		}
	}

	return summary, firstErr
}

func (c *Checker) unregister(ctx context.Context, r dispatch.PendingReceipt) bool {
	user, err := urn.Parse(r.RecipientID)
	if err != nil {
		c.logger.Warn("Pending receipt has invalid recipient", "receipt_id", r.ID, "recipient", r.RecipientID, "err", err)
		return false
	}
	if err := c.tokens.UnregisterToken(ctx, user, r.Token); err != nil {
		c.logger.Warn("Failed to unregister token", "receipt_id", r.ID, "err", err)
		return false
	}
	c.logger.Info("Unregistered token after failed delivery", "recipient", r.RecipientID)
	return true
}
