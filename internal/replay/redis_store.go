package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps replay records in Redis with native key expiry.
type RedisStore struct {
	client *redis.Client
	opts   Options
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	if client == nil {
		panic("replay: redis client required")
	}
	return &RedisStore{client: client, opts: opts.withDefaults(), now: time.Now}
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, errors.New("replay: key required")
	}
	pending, err := json.Marshal(newRecord(key, StatusPending, s.opts.PendingTTL, s.now()))
	if err != nil {
		return nil, fmt.Errorf("replay: marshal pending record: %w", err)
	}

	// A record can expire between SETNX and GET; one more round settles it.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, key, pending, s.opts.PendingTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("replay: reserve: %w", err)
		}
		if ok {
			return nil, nil
		}
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("replay: load record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("replay: decode record: %w", err)
		}
		return &rec, nil
	}
	return nil, fmt.Errorf("replay: reserve %s: record kept changing", key)
}

func (s *RedisStore) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	if key == "" {
		return errors.New("replay: key required")
	}
	rec := newRecord(key, StatusCompleted, s.opts.TTL, s.now())
	rec.StatusCode = statusCode
	rec.Body = string(body)
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("replay: marshal record: %w", err)
	}
	// XX: only overwrite a reservation that still exists.
	ok, err := s.client.SetXX(ctx, key, raw, s.opts.TTL).Result()
	if err != nil {
		return fmt.Errorf("replay: complete: %w", err)
	}
	if !ok {
		return ErrNotReserved
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("replay: release: %w", err)
	}
	return nil
}
