package ratecell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// casAttempts bounds the optimistic-locking retry loop. Losing the write race
// this many times in a row on one key means the caller is better served by an
// error than by more spinning.
const casAttempts = 16

// RedisStore implements StateStore on Redis. The bucket's theoretical arrival
// time is stored as a decimal string, and the key's native expiry carries the
// ttl. Per-key atomicity comes from a WATCH-based compare-and-swap loop: the
// transaction is retried when another client writes the key between our read
// and our write.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ StateStore = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string // Redis address (e.g., "localhost:6379")
	Password string // Redis password (empty for no auth)
	DB       int    // Redis database number
	Prefix   string // Key prefix (default: "ratecell:")
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "ratecell:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Update atomically applies fn to the bucket state for key.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if key == "" {
		return ErrInvalidKey
	}
	k := s.prefix + key

	txf := func(tx *redis.Tx) error {
		stored, err := parseArrival(tx.Get(ctx, k).Result())
		if err != nil {
			return err
		}

		next, expiry, persist := fn(stored)
		if !persist {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if expiry <= 0 {
				pipe.Del(ctx, k)
			} else {
				pipe.Set(ctx, k, strconv.FormatInt(next, 10), expiry)
			}
			return nil
		})
		return err
	}

	for i := 0; i < casAttempts; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrStoreContention, key)
}

// Peek returns the stored arrival time for key, or 0 when absent.
func (s *RedisStore) Peek(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}
	return parseArrival(s.client.Get(ctx, s.prefix+key).Result())
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Clear removes all keys under the store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

// parseArrival interprets a raw GET result as a bucket timestamp. A missing
// key is a fresh bucket; anything unparseable is surfaced as corruption
// rather than silently treated as a reset quota.
func parseArrival(val string, err error) (int64, error) {
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			return 0, fmt.Errorf("%w: %v", ErrWrongType, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	arrival, perr := strconv.ParseInt(val, 10, 64)
	if perr != nil || arrival < 0 {
		return 0, fmt.Errorf("%w: %q", ErrCorruptState, val)
	}
	return arrival, nil
}
