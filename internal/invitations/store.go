package invitations

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lingopeer/backend/internal/models"
)

const keyPrefix = "invite:"

// RedisStore keeps invitations in Redis with a TTL. Invitations are
// ephemeral; losing them never affects session durability.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates an invitation store. ttl <= 0 falls back to 72 hours.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func key(sessionID, userID uuid.UUID) string {
	return keyPrefix + sessionID.String() + ":" + userID.String()
}

// Put stores an invitation, refreshing the TTL on re-invite.
func (s *RedisStore) Put(ctx context.Context, inv models.Invitation) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(inv.SessionID, inv.UserID), raw, s.ttl).Err()
}

// Get returns the invitation or (nil, nil) when absent or expired.
func (s *RedisStore) Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Invitation, error) {
	raw, err := s.client.Get(ctx, key(sessionID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var inv models.Invitation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Delete removes the invitation.
func (s *RedisStore) Delete(ctx context.Context, sessionID, userID uuid.UUID) error {
	return s.client.Del(ctx, key(sessionID, userID)).Err()
}
