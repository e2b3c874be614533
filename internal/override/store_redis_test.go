package override

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
}

func TestRedisStore_LoadEmpty(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestRedisStore_SaveLoadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := map[string]string{"c1": "Busy", "c2": "Completed"}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out) != 2 || out["c1"] != "Busy" || out["c2"] != "Completed" {
		t.Fatalf("roundtrip mismatch: %v", out)
	}
}

func TestRedisStore_WatchSeesOtherSessionsSaves(t *testing.T) {
	mr := miniredis.RunT(t)
	writer := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	watcher := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan map[string]string, 1)
	go func() {
		_ = watcher.Watch(ctx, func(m map[string]string) {
			select {
			case got <- m:
			default:
			}
		})
	}()

	// Give the subscription a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)
	if err := writer.Save(ctx, map[string]string{"c1": "Busy"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	select {
	case m := <-got:
		if m["c1"] != "Busy" {
			t.Fatalf("watcher saw %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher never notified")
	}
}
