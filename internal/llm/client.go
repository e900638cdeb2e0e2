package llm

import "context"

// Client is the interface every model backend implements. Exactly one
// backend is active per process.
type Client interface {
	// Complete sends the turns, tool catalog and system instruction and
	// returns the model's reply. It honours ctx cancellation.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error

	// Provider names the backend ("ollama", "anthropic", ...).
	Provider() string

	// Model is the model identifier requests are sent to.
	Model() string
}
