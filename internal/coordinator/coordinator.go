// Package coordinator implements the Fast Coordinator (FC): the in-memory
// atomic stock counter and per-user purchase marks backed by Redis.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any transient connectivity failure talking to the
// coordinator backend. The admission pipeline treats this per spec: at the
// critical decrement step it maps straight to ERROR with no compensation;
// at the fast user-mark check it falls through to the DOL.
var ErrUnavailable = errors.New("coordinator unavailable")

// RedisClient is the subset of redis.Cmdable the coordinator needs. This lets
// tests substitute a fake without standing up a real Redis.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Coordinator is the interface the admission pipeline depends on. Named to
// match the FC contract of spec.md section 4.1.
type Coordinator interface {
	SetStock(ctx context.Context, saleID string, n int64) error
	GetStock(ctx context.Context, saleID string) (stock int64, ok bool, err error)
	DecrStock(ctx context.Context, saleID string) (int64, error)
	IncrStock(ctx context.Context, saleID string) (int64, error)
	HasMark(ctx context.Context, saleID, userID string) (bool, error)
	SetMark(ctx context.Context, saleID, userID string) error
	ClearMark(ctx context.Context, saleID, userID string) error
	Reset(ctx context.Context, saleID string) error
}

// RedisCoordinator implements Coordinator against a Redis backend.
type RedisCoordinator struct {
	client   RedisClient
	markTTL  time.Duration
}

// NewRedisCoordinator creates a RedisCoordinator with the given client and
// user-mark TTL. The TTL should slightly exceed the longest sale window.
func NewRedisCoordinator(client RedisClient, markTTL time.Duration) *RedisCoordinator {
	if markTTL <= 0 {
		markTTL = 24 * time.Hour
	}
	return &RedisCoordinator{client: client, markTTL: markTTL}
}

func stockKey(saleID string) string {
	return fmt.Sprintf("stock:%s", saleID)
}

func markKey(saleID, userID string) string {
	return fmt.Sprintf("user:%s:%s", saleID, userID)
}

func markScanPattern(saleID string) string {
	return fmt.Sprintf("user:%s:*", saleID)
}

// SetStock unconditionally writes the stock counter. Used by bootstrap and reset only.
func (c *RedisCoordinator) SetStock(ctx context.Context, saleID string, n int64) error {
	if err := c.client.Set(ctx, stockKey(saleID), n, 0).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// GetStock reads the stock counter. ok is false if the key is absent.
func (c *RedisCoordinator) GetStock(ctx context.Context, saleID string) (int64, bool, error) {
	v, err := c.client.Get(ctx, stockKey(saleID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, wrapErr(err)
	}
	return v, true, nil
}

// DecrStock atomically decrements and returns the new value. May return negative.
func (c *RedisCoordinator) DecrStock(ctx context.Context, saleID string) (int64, error) {
	v, err := c.client.Decr(ctx, stockKey(saleID)).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

// IncrStock atomically increments and returns the new value. Used for rollback.
func (c *RedisCoordinator) IncrStock(ctx context.Context, saleID string) (int64, error) {
	v, err := c.client.Incr(ctx, stockKey(saleID)).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

// HasMark reports whether a purchase mark exists for (saleID, userID).
func (c *RedisCoordinator) HasMark(ctx context.Context, saleID, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, markKey(saleID, userID)).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

// SetMark idempotently sets the purchase mark with the configured TTL.
func (c *RedisCoordinator) SetMark(ctx context.Context, saleID, userID string) error {
	if err := c.client.Set(ctx, markKey(saleID, userID), "1", c.markTTL).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// ClearMark removes the purchase mark. Used for rollback.
func (c *RedisCoordinator) ClearMark(ctx context.Context, saleID, userID string) error {
	if err := c.client.Del(ctx, markKey(saleID, userID)).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// Reset deletes the stock key and every mark for the sale. Administrative only.
func (c *RedisCoordinator) Reset(ctx context.Context, saleID string) error {
	keys := []string{stockKey(saleID)}

	var cursor uint64
	pattern := markScanPattern(saleID)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return wrapErr(err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

func wrapErr(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
