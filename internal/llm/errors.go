package llm

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned by [Breaker] while the provider is considered
// down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// TransportError reports a failed model call: network failure, non-2xx
// status, undecodable response or cancellation.
type TransportError struct {
	Provider   string
	StatusCode int // zero when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps a [*TransportError].
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
