package idempotency

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps keys in Redis with a TTL, so every API replica sees the
// same reservations.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (int64, bool, error) {
	// The second attempt covers a key expiring between SETNX and GET.
	for range 2 {
		ok, err := s.client.SetNX(ctx, key, pending, s.ttl).Result()
		if err != nil {
			return 0, false, errors.Wrap(err, "setnx")
		}
		if ok {
			return 0, true, nil
		}

		v, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, false, errors.Wrap(err, "get")
		}
		return parse(v)
	}
	return 0, false, ErrInFlight
}

func (s *RedisStore) Complete(ctx context.Context, key string, orderID int64) error {
	if err := s.client.Set(ctx, key, strconv.FormatInt(orderID, 10), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

// parse decodes a stored value into Reserve's results.
func parse(v string) (int64, bool, error) {
	if v == pending {
		return 0, false, ErrInFlight
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "corrupt idempotency value %q", v)
	}
	return id, false, nil
}
