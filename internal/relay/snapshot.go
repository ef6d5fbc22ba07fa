package relay

import (
	"context"
	"errors"
	"time"

	"ridetrack/pkg/cache"
)

const snapshotKeyPrefix = "tracking:snapshot:"

// RedisSnapshotStore keeps per-ride last-known state in redis so a relay
// restart does not blind freshly joining passengers.
type RedisSnapshotStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewRedisSnapshotStore(c *cache.RedisCache, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{cache: c, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, rideID string, snap *ChannelSnapshot) error {
	return s.cache.Set(ctx, snapshotKeyPrefix+rideID, snap, s.ttl)
}

func (s *RedisSnapshotStore) Load(ctx context.Context, rideID string) (*ChannelSnapshot, error) {
	var snap ChannelSnapshot
	err := s.cache.Get(ctx, snapshotKeyPrefix+rideID, &snap)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, rideID string) error {
	return s.cache.Delete(ctx, snapshotKeyPrefix+rideID)
}
