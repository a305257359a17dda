package roster

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

// Cached is a read-through redis cache in front of another store. Redis
// failures fall back to the wrapped store.
type Cached struct {
	next Store
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

func NewCached(next Store, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(guildID string) string {
	return "servant-draft-roster-" + guildID
}

func (c *Cached) LoadRoster(ctx context.Context, guildID string) ([]Player, error) {
	key := cacheKey(guildID)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var players []Player
		if err := json.Unmarshal(data, &players); err == nil {
			return players, nil
		}
		c.log.Warn("discarding corrupt roster cache entry", zap.String("guild", guildID))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("roster cache unavailable", zap.String("guild", guildID), zap.Error(err))
	}

	players, err := c.next.LoadRoster(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(players); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Debug("could not fill roster cache", zap.String("guild", guildID), zap.Error(err))
		}
	}
	return players, nil
}

func (c *Cached) Upsert(ctx context.Context, p Player) error {
	if err := c.next.Upsert(ctx, p); err != nil {
		return err
	}
	c.Invalidate(ctx, p.GuildID)
	return nil
}

func (c *Cached) Invalidate(ctx context.Context, guildID string) {
	if err := c.rdb.Del(ctx, cacheKey(guildID)).Err(); err != nil {
		c.log.Debug("could not invalidate roster cache", zap.String("guild", guildID), zap.Error(err))
	}
}
