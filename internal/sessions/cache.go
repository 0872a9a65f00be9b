package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lingopeer/backend/internal/models"
)

const cacheKeyPrefix = "session:"

// Cache is the advisory read accelerator for session aggregates. The
// orchestrator overwrites entries after every store commit (write-around) and
// never consults the cache for capacity or status decisions.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Put(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisCache implements Cache over Redis with a per-entry TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a session cache. ttl <= 0 falls back to 6 hours.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached session or (nil, nil) on miss. Redis errors are
// logged and reported as a miss so reads fall through to the store.
func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+id.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("session cache read failed", zap.Error(err), zap.String("session_id", id.String()))
		}
		return nil, nil
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		c.logger.Warn("session cache entry corrupt", zap.Error(err), zap.String("session_id", id.String()))
		return nil, nil
	}
	return &s, nil
}

// Put overwrites the cache entry for the session.
func (c *RedisCache) Put(ctx context.Context, s *models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+s.ID.String(), raw, c.ttl).Err()
}

// Delete evicts the cache entry.
func (c *RedisCache) Delete(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, cacheKeyPrefix+id.String()).Err()
}
