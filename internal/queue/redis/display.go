package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/strikersplash/Striker-Splash-sub001/internal/logger"
	queue "github.com/strikersplash/Striker-Splash-sub001/internal/queue/service"
)

const displayKey = "queue:display"

// DisplayCache keeps the operator display composite in Redis with a short
// TTL. Every kiosk and operator screen polls the display, so the store is
// only hit when the cache is cold. Cache failures are logged and ignored;
// the store stays the source of truth.
type DisplayCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewDisplayCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *DisplayCache {
	return &DisplayCache{Client: client, TTL: ttl, Logger: log}
}

func (c *DisplayCache) Get(ctx context.Context) (*queue.Display, bool) {
	raw, err := c.Client.Get(ctx, displayKey).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("REDIS", "display cache read failed: "+err.Error())
		}
		return nil, false
	}

	var display queue.Display
	if err := json.Unmarshal([]byte(raw), &display); err != nil {
		if c.Logger != nil {
			c.Logger.Warn("REDIS", "display cache entry corrupt, dropping: "+err.Error())
		}
		c.Invalidate(ctx)
		return nil, false
	}
	return &display, true
}

func (c *DisplayCache) Set(ctx context.Context, display queue.Display) {
	raw, err := json.Marshal(display)
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, displayKey, raw, c.TTL).Err(); err != nil && c.Logger != nil {
		c.Logger.Warn("REDIS", "display cache write failed: "+err.Error())
	}
}

func (c *DisplayCache) Invalidate(ctx context.Context) {
	if err := c.Client.Del(ctx, displayKey).Err(); err != nil && c.Logger != nil {
		c.Logger.Warn("REDIS", "display cache invalidate failed: "+err.Error())
	}
}
