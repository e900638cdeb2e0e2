// Package tools provides the tool registry and the builtin tools the model
// can call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
)

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = 30 * time.Second

// Handler executes one tool call. The returned value becomes the result
// payload and must be JSON-encodable.
type Handler interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Spec describes a callable tool.
type Spec struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object. Only its "required" list is
	// enforced, and only for presence.
	Parameters map[string]any
	Handler    Handler
}

// Registry holds the available tools. Tools are registered at startup;
// Execute and Definitions are safe for concurrent use afterwards.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Spec
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout sets the per-call execution budget. Zero or negative
// disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:   make(map[string]*Spec),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "tools")
	return r
}

// Register adds a tool. Empty names, nil handlers and duplicate names are
// rejected.
func (r *Registry) Register(s Spec) error {
	if s.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if s.Handler == nil {
		return fmt.Errorf("register tool %q: nil handler", s.Name)
	}
	if s.Parameters == nil {
		s.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[s.Name]; ok {
		return fmt.Errorf("register tool %q: %w", s.Name, ErrDuplicateTool)
	}
	r.tools[s.Name] = &s
	return nil
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.tools)
	sort.Strings(names)
	return names
}

// Definitions returns the catalog sent to the model, sorted by name.
// Handlers are not exposed.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := lo.MapToSlice(r.tools, func(_ string, s *Spec) llm.ToolDefinition {
		return llm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		}
	})
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. It never returns an error and never panics:
// unknown names, missing required parameters, handler errors, panics and
// timeouts all come back as a Result with StatusError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	spec := r.Get(name)
	if spec == nil {
		err := &ErrUnknownTool{Name: name}
		res := Failure(name, err)
		res.Hint = r.suggest(name)
		r.logger.Warn("unknown tool requested", "tool", name, "hint", res.Hint)
		return res
	}

	if args == nil {
		args = map[string]any{}
	}
	required := llm.ToolDefinition{Parameters: spec.Parameters}.Required()
	for _, p := range required {
		if _, ok := args[p]; !ok {
			r.logger.Warn("tool call missing parameter", "tool", name, "param", p)
			return Failure(name, &ErrMissingParameter{Tool: name, Param: p})
		}
	}

	start := time.Now()
	payload, err := r.invoke(ctx, spec, args)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "elapsed", elapsed, "error", err)
		return Failure(name, err)
	}

	r.logger.Debug("tool executed", "tool", name, "elapsed", elapsed)
	return Success(name, payload)
}

type outcome struct {
	payload any
	err     error
}

// invoke runs the handler under the execution budget and converts panics
// into errors. A handler that ignores ctx keeps running in its goroutine
// after a timeout; its result is discarded.
func (r *Registry) invoke(ctx context.Context, spec *Spec, args map[string]any) (any, error) {
	timeout := &ErrToolTimeout{Tool: spec.Name, Timeout: r.timeout}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.timeout, timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- outcome{err: &ErrToolPanic{Tool: spec.Name, Value: v}}
			}
		}()
		payload, err := spec.Handler.Execute(ctx, args)
		done <- outcome{payload: payload, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err != nil && r.timeout > 0 && errors.Is(context.Cause(ctx), timeout) {
		return nil, timeout
	}
	return out.payload, out.err
}

// suggest returns the registered name closest to name, or "".
func (r *Registry) suggest(name string) string {
	names := r.Names()
	if len(names) == 0 || name == "" {
		return ""
	}

	ranks := fuzzy.RankFindFold(name, names)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", 4
	for _, n := range names {
		if d := fuzzy.LevenshteinDistance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}
