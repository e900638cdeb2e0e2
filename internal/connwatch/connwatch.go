// Package connwatch tracks whether the services Sanjeevni depends on (the
// model backend and its databases) are reachable.
//
// Each Watcher probes one dependency in the background. While the
// dependency is down, probes back off exponentially; once it is up, probes
// run at a fixed poll interval. Transitions are logged.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Probe checks whether a dependency is reachable. Return nil if healthy.
type Probe func(ctx context.Context) error

// Backoff controls probe timing.
type Backoff struct {
	// Initial is the retry delay after the first failure.
	Initial time.Duration
	// Max caps the retry delay.
	Max time.Duration
	// Multiplier grows the retry delay after each consecutive failure.
	Multiplier float64
	// Poll is the interval between probes while the dependency is up.
	Poll time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
}

// DefaultBackoff returns 2s, 4s, 8s, ... capped at 60s, polling every 60s
// once healthy.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    2 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 2.0,
		Poll:       60 * time.Second,
		Timeout:    10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	if b.Poll <= 0 {
		b.Poll = d.Poll
	}
	if b.Timeout <= 0 {
		b.Timeout = d.Timeout
	}
	return b
}

// Status is the health of one dependency as reported by the health
// endpoint.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher probes one dependency until its context is cancelled.
type Watcher struct {
	name    string
	probe   Probe
	backoff Backoff
	logger  *slog.Logger
	ready   atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// Watch starts a watcher for name. The first probe runs immediately.
func Watch(ctx context.Context, name string, probe Probe, b Backoff, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		name:    name,
		probe:   probe,
		backoff: b.withDefaults(),
		logger:  logger.With("component", "connwatch", "service", name),
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	return w.ready.Load()
}

// Status returns the current health.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{Name: w.name, Ready: w.ready.Load(), LastCheck: w.lastCheck}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Wait blocks until the watcher has stopped.
func (w *Watcher) Wait() {
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.Initial
	for attempt := 1; ; attempt++ {
		err := w.check(ctx)
		if ctx.Err() != nil {
			return
		}

		was := w.ready.Swap(err == nil)
		switch {
		case err == nil && !was:
			w.logger.Info("service ready", "attempts", attempt)
		case err != nil && was:
			w.logger.Warn("service unreachable", "error", err)
		case err != nil:
			w.logger.Debug("service still unreachable", "attempt", attempt, "next_delay", delay, "error", err)
		}

		next := w.backoff.Poll
		if err == nil {
			attempt = 0
			delay = w.backoff.Initial
		} else {
			next = delay
			delay = min(time.Duration(float64(delay)*w.backoff.Multiplier), w.backoff.Max)
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Watcher) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.backoff.Timeout)
	defer cancel()
	err := w.probe(ctx)

	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
	return err
}

// Set groups the watchers reported by the health endpoint.
type Set struct {
	mu       sync.RWMutex
	watchers []*Watcher
}

// Add registers w.
func (s *Set) Add(w *Watcher) {
	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()
}

// Statuses returns the health of every watcher, sorted by name.
func (s *Set) Statuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether every watched dependency is ready.
func (s *Set) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.watchers {
		if !w.Ready() {
			return false
		}
	}
	return true
}
