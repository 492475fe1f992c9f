package smtptransport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/unclebandit/relaycast/internal/apperrors"
	"github.com/unclebandit/relaycast/internal/model"
)

type fakeHandle struct {
	closed int32
}

func (f *fakeHandle) Send(ctx context.Context, msg Message) (SendInfo, error) {
	return SendInfo{}, nil
}

func (f *fakeHandle) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func testRelay() model.RelayDescriptor {
	return model.RelayDescriptor{ID: "r1", Name: "r1", Host: "smtp.example.com", Port: 587, User: "bot", Secret: "s"}
}

// TestCacheAcquireSingleflight is spec §8 Scenario 6: two campaigns
// targeting the same relay start concurrently, and only one dial
// happens — both callers share the one cached handle.
func TestCacheAcquireSingleflight(t *testing.T) {
	c := New()
	var dialCount int32
	start := make(chan struct{})
	c.dial = func(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
		<-start
		atomic.AddInt32(&dialCount, 1)
		return &fakeHandle{}, nil
	}

	relay := testRelay()
	const n = 8
	var wg sync.WaitGroup
	handles := make([]Handle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Acquire(context.Background(), relay)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&dialCount); got != 1 {
		t.Fatalf("dial called %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("handle %d differs from handle 0, expected one shared cached handle", i)
		}
	}
}

// TestCacheAcquireHitAfterMiss confirms a second Acquire for the same
// key returns the cached handle without dialing again.
func TestCacheAcquireHitAfterMiss(t *testing.T) {
	c := New()
	var dialCount int32
	c.dial = func(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
		atomic.AddInt32(&dialCount, 1)
		return &fakeHandle{}, nil
	}

	relay := testRelay()
	first, err := c.Acquire(context.Background(), relay)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	second, err := c.Acquire(context.Background(), relay)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if first != second {
		t.Fatalf("expected cache hit to return the same handle")
	}
	if got := atomic.LoadInt32(&dialCount); got != 1 {
		t.Fatalf("dial called %d times, want 1 (second call should be a cache hit)", got)
	}
}

// TestCacheAcquireDifferentKeysDialSeparately confirms distinct relay
// keys are not coalesced by the singleflight group.
func TestCacheAcquireDifferentKeysDialSeparately(t *testing.T) {
	c := New()
	var dialCount int32
	c.dial = func(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
		atomic.AddInt32(&dialCount, 1)
		return &fakeHandle{}, nil
	}

	relayA := testRelay()
	relayB := testRelay()
	relayB.Host = "smtp-b.example.com"

	if _, err := c.Acquire(context.Background(), relayA); err != nil {
		t.Fatalf("Acquire A: %v", err)
	}
	if _, err := c.Acquire(context.Background(), relayB); err != nil {
		t.Fatalf("Acquire B: %v", err)
	}
	if got := atomic.LoadInt32(&dialCount); got != 2 {
		t.Fatalf("dial called %d times, want 2 for two distinct keys", got)
	}
}

// TestCacheAcquireDialFailureNotCached confirms a failed dial is not
// cached or poisoned into the singleflight group for the next caller.
func TestCacheAcquireDialFailureNotCached(t *testing.T) {
	c := New()
	var attempt int32
	c.dial = func(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
		if atomic.AddInt32(&attempt, 1) == 1 {
			return nil, apperrors.New(apperrors.CodeConnRefused, "", nil)
		}
		return &fakeHandle{}, nil
	}

	relay := testRelay()
	if _, err := c.Acquire(context.Background(), relay); err == nil {
		t.Fatalf("expected first Acquire to fail")
	}
	h, err := c.Acquire(context.Background(), relay)
	if err != nil {
		t.Fatalf("second Acquire should retry the dial: %v", err)
	}
	if h == nil {
		t.Fatalf("expected a handle on retry")
	}
}

// TestCacheShutdownClosesHandles confirms Shutdown closes every cached
// handle and empties the cache.
func TestCacheShutdownClosesHandles(t *testing.T) {
	c := New()
	fh := &fakeHandle{}
	c.dial = func(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
		return fh, nil
	}

	relay := testRelay()
	if _, err := c.Acquire(context.Background(), relay); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c.Shutdown()

	if atomic.LoadInt32(&fh.closed) != 1 {
		t.Fatalf("expected handle to be closed on Shutdown")
	}
	if len(c.handles) != 0 {
		t.Fatalf("expected handles map cleared after Shutdown")
	}
}
