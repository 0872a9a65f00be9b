package signaling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lingopeer/backend/internal/models"
)

const presenceKeyPrefix = "room:presence:"

// RedisPresence stores room registries in Redis with a TTL so room views can
// be served from any instance while the registry itself stays in memory on
// the instance owning the room.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence creates a presence store. ttl <= 0 falls back to 12 hours.
func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisPresence{client: client, ttl: ttl}
}

// Save overwrites the room's registry snapshot.
func (p *RedisPresence) Save(ctx context.Context, info models.RoomInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, presenceKeyPrefix+info.ID.String(), raw, p.ttl).Err()
}

// Load returns the room snapshot or (nil, nil) when absent.
func (p *RedisPresence) Load(ctx context.Context, roomID uuid.UUID) (*models.RoomInfo, error) {
	raw, err := p.client.Get(ctx, presenceKeyPrefix+roomID.String()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info models.RoomInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Delete removes the room snapshot.
func (p *RedisPresence) Delete(ctx context.Context, roomID uuid.UUID) error {
	return p.client.Del(ctx, presenceKeyPrefix+roomID.String()).Err()
}
