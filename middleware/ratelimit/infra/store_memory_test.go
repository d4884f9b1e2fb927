package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_FirstIncrementStartsWindow(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(0).UTC())
	s := NewMemoryCounterStore(WithClock(clock.Now))

	count, ttl, err := s.Increment(context.Background(), "k", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count=1, got %d", count)
	}
	if ttl != time.Hour {
		t.Fatalf("expected full window ttl, got %s", ttl)
	}
}

func TestMemoryStore_IncrementKeepsExistingTTL(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(0).UTC())
	s := NewMemoryCounterStore(WithClock(clock.Now))

	if _, _, err := s.Increment(context.Background(), "k", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(10 * time.Minute)

	count, ttl, err := s.Increment(context.Background(), "k", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count=2, got %d", count)
	}
	// a janela NÃO reinicia no segundo increment
	if ttl != 50*time.Minute {
		t.Fatalf("expected ttl=50m, got %s", ttl)
	}
}

func TestMemoryStore_ExpiredWindowRestartsAtOne(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(0).UTC())
	s := NewMemoryCounterStore(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if _, _, err := s.Increment(context.Background(), "k", time.Hour); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	clock.Advance(time.Hour + time.Millisecond)

	count, ttl, err := s.Increment(context.Background(), "k", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window count=1, got %d", count)
	}
	if ttl != time.Hour {
		t.Fatalf("expected full window ttl after expiry, got %s", ttl)
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(0).UTC())
	s := NewMemoryCounterStore(WithClock(clock.Now))

	if _, _, err := s.Increment(context.Background(), "a", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _, err := s.Increment(context.Background(), "b", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected independent counter for second key, got %d", count)
	}
}

func TestMemoryStore_CleanupRemovesExpiredEntries(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(0).UTC())
	s := NewMemoryCounterStore(WithClock(clock.Now))

	if _, _, err := s.Increment(context.Background(), "k", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(2 * time.Minute)
	s.Cleanup()

	s.mu.Lock()
	_, ok := s.entries[domain.Key("k")]
	s.mu.Unlock()
	if ok {
		t.Fatalf("expected expired entry to be removed")
	}
}

func TestMemoryStore_AlwaysAvailable(t *testing.T) {
	s := NewMemoryCounterStore()
	if !s.Available() {
		t.Fatalf("expected memory store to be available")
	}
}
