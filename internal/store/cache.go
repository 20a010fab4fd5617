package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const defaultPriceTTL = 2 * time.Hour

// RedisPriceCache mirrors the latest canonical price into Redis so consumers
// can read it without touching the document store. Failures are logged and
// swallowed; the cache is never load-bearing for ingestion.
type RedisPriceCache struct {
	rds *redis.Redis
	ttl time.Duration
}

// NewRedisPriceCache wires the mirror. Returns nil when conf carries no host,
// which callers treat as "cache disabled".
func NewRedisPriceCache(conf redis.RedisConf, ttl time.Duration) *RedisPriceCache {
	if conf.Host == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &RedisPriceCache{rds: redis.MustNewRedis(conf), ttl: ttl}
}

// RecordLatest writes provider-scoped and global latest-price keys.
func (c *RedisPriceCache) RecordLatest(ctx context.Context, provider, symbol string, price float64, ts time.Time) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"price": price,
		"ts":    ts.UTC().UnixMilli(),
	})
	if err != nil {
		return
	}
	seconds := int(c.ttl / time.Second)
	for _, key := range []string{
		fmt.Sprintf("chainfeed:price:latest:%s:%s", provider, symbol),
		fmt.Sprintf("chainfeed:price:latest:%s", symbol),
	} {
		if err := c.rds.SetexCtx(ctx, key, string(payload), seconds); err != nil {
			logx.WithContext(ctx).Errorf("store: cache price key=%s err=%v", key, err)
		}
	}
}
