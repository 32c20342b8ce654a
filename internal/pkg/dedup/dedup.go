package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agrimandi:webhook:event:"

// Deduplicator 基于 Redis SETNX 的网关通知去重器。
//
// 支付网关按"至少一次"投递通知，同一事件 ID 在去重窗口内
// 只有第一次 IsDuplicate 返回 false。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

func (d *Deduplicator) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	if d == nil || d.rdb == nil || eventID == "" {
		return false, nil
	}
	key := keyPrefix + hashID(eventID)
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Delete 释放事件 ID 占位，业务处理失败时调用以允许网关重试。
func (d *Deduplicator) Delete(ctx context.Context, eventID string) error {
	if d == nil || d.rdb == nil || eventID == "" {
		return nil
	}
	key := keyPrefix + hashID(eventID)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
