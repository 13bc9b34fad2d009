// Package redisx provides the redis-backed daily delivery counter.
//
// Keys are bucketed per day and expire after two days, so the counter
// needs no cleanup job. The in-memory counter in store/ is the default
// when no redis address is configured.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyDailyDeliveries = "orders:deliveries:%s" // %s = 2006-01-02
	counterTTL         = 48 * time.Hour
)

type Counter struct {
	rdb *redis.Client
}

func NewCounter(addr string) *Counter {
	return &Counter{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *Counter) Increment(ctx context.Context, day string) (int, error) {
	key := fmt.Sprintf(keyDailyDeliveries, day)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		// First order of the day sets the expiry.
		c.rdb.Expire(ctx, key, counterTTL)
	}
	return int(n), nil
}

func (c *Counter) Decrement(ctx context.Context, day string) error {
	key := fmt.Sprintf(keyDailyDeliveries, day)
	return c.rdb.Decr(ctx, key).Err()
}

func (c *Counter) Close() error {
	return c.rdb.Close()
}
