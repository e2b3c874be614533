package override

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	overridesKey     = "dialtrack:status-overrides"
	overridesChannel = "dialtrack:status-overrides:changed"
)

// RedisStore keeps the override map under a single JSON key and publishes
// a change event after every save. Watchers reload the whole document
// rather than applying deltas, which keeps convergence trivial.
type RedisStore struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisStore(rdb *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{rdb: rdb, log: log}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	raw, err := s.rdb.Get(ctx, overridesKey).Result()
	if errors.Is(err, redis.Nil) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("override: load: %w", err)
	}

	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("override: decode: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, overrides map[string]string) error {
	raw, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("override: encode: %w", err)
	}
	if err := s.rdb.Set(ctx, overridesKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("override: save: %w", err)
	}
	// Notification is best-effort; a missed event only delays convergence
	// until the next save.
	if err := s.rdb.Publish(ctx, overridesChannel, "changed").Err(); err != nil {
		s.log.Warn("override change publish failed", "err", err)
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context, fn func(map[string]string)) error {
	sub := s.rdb.Subscribe(ctx, overridesChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := s.Load(ctx)
			if err != nil {
				s.log.Warn("override reload failed", "err", err)
				continue
			}
			fn(m)
		}
	}
}
