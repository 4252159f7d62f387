package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
)

const (
	receiptsDueKey  = "notify:receipts:due"
	receiptsDataKey = "notify:receipts:data"
)

// RedisReceiptStore keeps pending receipts in a sorted set scored by send
// time, with the receipt details in a hash keyed by receipt id.
type RedisReceiptStore struct {
	rdb redis.Cmdable
}

func NewRedisReceiptStore(rdb redis.Cmdable) *RedisReceiptStore {
	return &RedisReceiptStore{rdb: rdb}
}

func (s *RedisReceiptStore) SavePending(ctx context.Context, receipts []dispatch.PendingReceipt) error {
	if len(receipts) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range receipts {
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal receipt %s: %w", r.ID, err)
			}
			pipe.HSet(ctx, receiptsDataKey, r.ID, payload)
			pipe.ZAdd(ctx, receiptsDueKey, redis.Z{Score: float64(r.SentAt.UnixMilli()), Member: r.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save pending receipts: %w", err)
	}
	return nil
}

func (s *RedisReceiptStore) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]dispatch.PendingReceipt, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, receiptsDueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due receipts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.rdb.HMGet(ctx, receiptsDataKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load receipts: %w", err)
	}

	receipts := make([]dispatch.PendingReceipt, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without details; keep the id so it can be removed.
			receipts = append(receipts, dispatch.PendingReceipt{ID: ids[i]})
			continue
		}
		var r dispatch.PendingReceipt
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			receipts = append(receipts, dispatch.PendingReceipt{ID: ids[i]})
			continue
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func (s *RedisReceiptStore) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, receiptsDueKey, members...)
		pipe.HDel(ctx, receiptsDataKey, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove receipts: %w", err)
	}
	return nil
}
