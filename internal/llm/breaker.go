package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	}
	return "closed"
}

// Breaker is a circuit breaker around a [Client]. After maxFailures
// consecutive failed completions it rejects calls with [ErrCircuitOpen]
// until cooldown has passed, then lets one trial call through.
//
// Caller cancellation does not count as a provider failure.
type Breaker struct {
	next        Client
	maxFailures int
	cooldown    time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker wraps next.
func NewBreaker(next Client, maxFailures int, cooldown time.Duration, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		next:        next,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger.With("component", "breaker", "provider", next.Provider()),
		now:         time.Now,
	}
}

// Provider implements [Client].
func (b *Breaker) Provider() string { return b.next.Provider() }

// Model implements [Client].
func (b *Breaker) Model() string { return b.next.Model() }

// Ping implements [Client]. Pings bypass the breaker.
func (b *Breaker) Ping(ctx context.Context) error { return b.next.Ping(ctx) }

// Complete implements [Client].
func (b *Breaker) Complete(ctx context.Context, req Request) (*Completion, error) {
	if !b.allow() {
		return nil, &TransportError{Provider: b.next.Provider(), Err: ErrCircuitOpen}
	}

	out, err := b.next.Complete(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		if b.state != breakerClosed {
			b.logger.Info("provider recovered, closing circuit")
		}
		b.failures = 0
		b.state = breakerClosed
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
	default:
		b.failures++
		if b.state == breakerHalfOpen || b.failures >= b.maxFailures {
			if b.state != breakerOpen {
				b.logger.Warn("opening circuit", "failures", b.failures, "cooldown", b.cooldown)
			}
			b.state = breakerOpen
			b.openedAt = b.now()
		}
	}
	return out, err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// State reports the breaker state for health output.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
