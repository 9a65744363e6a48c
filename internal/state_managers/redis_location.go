package state_managers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

const defaultRedisKeyPrefix = "fleet:location:last"

// RedisLocationStore keeps last known locations in Redis, one key per device.
type RedisLocationStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisLocationStore uses client for storage. A zero ttl keeps keys forever.
func NewRedisLocationStore(client redis.Cmdable, prefix string, ttl time.Duration, logger zerolog.Logger) *RedisLocationStore {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisLocationStore{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisLocationStore) key(deviceID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, deviceID)
}

func (r *RedisLocationStore) SaveLastKnown(ctx context.Context, loc location.DeviceLocation) error {
	if loc.DeviceID == "" {
		return errors.New("location has no device id")
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	if err := r.client.Set(ctx, r.key(loc.DeviceID), data, r.ttl).Err(); err != nil {
		r.logger.Error().Err(err).Str("device_id", loc.DeviceID).Msg("Failed to store location in redis")
		return err
	}
	return nil
}

// LoadLastKnown returns nil when the key is absent or expired.
func (r *RedisLocationStore) LoadLastKnown(ctx context.Context, deviceID string) (*location.DeviceLocation, error) {
	data, err := r.client.Get(ctx, r.key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var loc location.DeviceLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &loc, nil
}
