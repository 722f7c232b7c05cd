package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, ttl), mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, _ := newMiniredisStore(t, time.Hour)
	ctx := context.Background()

	if _, err := store.Get(ctx, "+15550001111"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	s := NewSession("+15550001111", time.Now().UTC())
	s.State = StateDone
	s.CommittedRef = "APPT-3FA29C41"
	s.Slots[SlotDoctor] = SlotValue{Value: "Dr. Mehta", Provenance: ProvenanceExplicit}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != StateDone || got.CommittedRef != "APPT-3FA29C41" {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if got.Slots.Value(SlotDoctor) != "Dr. Mehta" {
		t.Fatalf("slots lost: %+v", got.Slots)
	}

	if err := store.Delete(ctx, "+15550001111"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "+15550001111"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestRedisSessionStoreTTL(t *testing.T) {
	store, mr := newMiniredisStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, NewSession("+15550002222", time.Now().UTC())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := mr.TTL(sessionKey("+15550002222")); ttl != time.Minute {
		t.Fatalf("expected 1m TTL on key, got %s", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "+15550002222"); err != ErrSessionNotFound {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}
