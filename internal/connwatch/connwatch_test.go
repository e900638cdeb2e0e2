package connwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastBackoff() Backoff {
	return Backoff{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2,
		Poll:       5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatcher_ReadyAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	probe := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	w := Watch(ctx, "model", probe, fastBackoff(), quietLogger())
	eventually(t, w.Ready, "watcher never became ready")

	st := w.Status()
	if st.Name != "model" || !st.Ready || st.LastError != "" || st.LastCheck.IsZero() {
		t.Errorf("Status = %+v", st)
	}
	if got := calls.Load(); got < 3 {
		t.Errorf("probe calls = %d, want >= 3", got)
	}

	cancel()
	w.Wait()
}

func TestWatcher_GoesDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var healthy atomic.Bool
	healthy.Store(true)
	probe := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("timeout")
	}

	w := Watch(ctx, "usage-db", probe, fastBackoff(), quietLogger())
	eventually(t, w.Ready, "watcher never became ready")

	healthy.Store(false)
	eventually(t, func() bool { return !w.Ready() }, "watcher never noticed the outage")
	if got := w.Status().LastError; got != "timeout" {
		t.Errorf("LastError = %q, want timeout", got)
	}
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := fastBackoff()
	b.Timeout = 5 * time.Millisecond
	probe := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	w := Watch(ctx, "slow", probe, b, quietLogger())
	eventually(t, func() bool { return w.Status().LastError != "" }, "probe never timed out")
	if w.Ready() {
		t.Error("Ready = true for a probe that always times out")
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := Watch(ctx, "model", func(context.Context) error { return nil }, fastBackoff(), quietLogger())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestBackoff_Defaults(t *testing.T) {
	got := Backoff{Initial: time.Second}.withDefaults()
	want := DefaultBackoff()
	want.Initial = time.Second
	if got != want {
		t.Errorf("withDefaults = %+v, want %+v", got, want)
	}
}

func TestSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var s Set
	if !s.Ready() {
		t.Error("empty set should be ready")
	}

	up := Watch(ctx, "model", func(context.Context) error { return nil }, fastBackoff(), quietLogger())
	down := Watch(ctx, "conversations", func(context.Context) error { return errors.New("locked") }, fastBackoff(), quietLogger())
	s.Add(up)
	s.Add(down)

	eventually(t, up.Ready, "model never ready")
	eventually(t, func() bool { return down.Status().LastError != "" }, "conversations never probed")

	if s.Ready() {
		t.Error("Ready = true with one dependency down")
	}
	st := s.Statuses()
	if len(st) != 2 || st[0].Name != "conversations" || st[1].Name != "model" {
		t.Errorf("Statuses = %+v, want sorted by name", st)
	}
}
