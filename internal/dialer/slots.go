package dialer

import (
	"context"
	"time"

	"dialtrack/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// DialSlots guards "at most one live call per contact" across processes.
// The in-process SessionManager is the primary gate; the slot catches a
// second API replica or a crashed process whose session map is gone.
type DialSlots interface {
	Acquire(ctx context.Context, contactID, owner string) (bool, error)
	Release(ctx context.Context, contactID, owner string) error
}

// RedisDialSlots implements DialSlots on a redis SET NX slot with a TTL so
// a crash cannot leak a contact's slot forever.
type RedisDialSlots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDialSlots(rdb *redis.Client, ttl time.Duration) *RedisDialSlots {
	if ttl <= 0 {
		// Outbound calls rarely exceed an hour; the TTL only bounds leak
		// duration after a crash.
		ttl = time.Hour
	}
	return &RedisDialSlots{rdb: rdb, ttl: ttl}
}

func (s *RedisDialSlots) Acquire(ctx context.Context, contactID, owner string) (bool, error) {
	return utils.AcquireDialSlot(ctx, s.rdb, slotKey(contactID), owner, s.ttl)
}

func (s *RedisDialSlots) Release(ctx context.Context, contactID, owner string) error {
	return utils.ReleaseDialSlot(ctx, s.rdb, slotKey(contactID), owner)
}

func slotKey(contactID string) string {
	return "dialtrack:dial-slot:" + contactID
}
