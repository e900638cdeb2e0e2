package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	var km KeyedMutex
	var inside, maxInside atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "a")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
	if km.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", km.Len())
	}
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	var km KeyedMutex
	unlockA, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock, err := km.Lock(context.Background(), "b")
		if err == nil {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyedMutex_WaitHonoursContext(t *testing.T) {
	var km KeyedMutex
	unlock, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := km.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Lock returned after %v, want prompt return", elapsed)
	}
	if km.Len() != 1 {
		t.Errorf("Len() = %d with one holder, want 1", km.Len())
	}

	unlock()
	if km.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", km.Len())
	}
	again, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
