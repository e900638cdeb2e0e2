// Package agent implements the orchestration loop: it turns a user
// message into an answer by driving the model through bounded rounds of
// tool use.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/sanjeevni-ai/sanjeevni/internal/config"
	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
	"github.com/sanjeevni-ai/sanjeevni/internal/memory"
	"github.com/sanjeevni-ai/sanjeevni/internal/prompts"
	"github.com/sanjeevni-ai/sanjeevni/internal/telemetry"
	"github.com/sanjeevni-ai/sanjeevni/internal/tools"
	"github.com/sanjeevni-ai/sanjeevni/internal/usage"
)

// ErrEmptyMessage is returned when the user text is blank.
var ErrEmptyMessage = errors.New("message must not be empty")

// Defaults applied when no option overrides them.
const (
	DefaultHistoryWindow = 10
	DefaultMaxDepth      = 10
)

// UseDefaultDepth asks Handle to use the engine's configured depth.
const UseDefaultDepth = -1

// Request is one user message to handle.
type Request struct {
	ConversationID string
	Text           string
	Language       string // empty means the engine default
	// MaxDepth bounds the rounds of tool dispatch. Negative means the
	// engine default; zero allows no tool rounds at all.
	MaxDepth int
	// RequireExisting fails with memory.ErrConversationNotFound instead of
	// creating the conversation on first append.
	RequireExisting bool
}

// Result is the answer to one Request.
type Result struct {
	Answer   string    `json:"answer"`
	Usage    llm.Usage `json:"token_usage"`
	Language string    `json:"language"`
	// ToolCalls and ToolResults are paired index-wise, in dispatch order.
	ToolCalls   []llm.FunctionCall `json:"tool_calls,omitempty"`
	ToolResults []tools.Result     `json:"tool_results,omitempty"`
	// Degraded is set when the model failed and Answer is the apology.
	Degraded bool `json:"degraded,omitempty"`
	// DepthExhausted is set when tool rounds hit the depth limit.
	DepthExhausted bool `json:"depth_exhausted,omitempty"`
}

// UsageRecorder persists per-message token usage.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Engine coordinates the conversation store, the model and the tool
// registry. It is safe for concurrent use; messages for the same
// conversation are handled one at a time.
type Engine struct {
	store    memory.Store
	model    llm.Client
	registry *tools.Registry

	identity      prompts.Identity
	language      string
	historyWindow int
	maxDepth      int

	recorder UsageRecorder
	pricing  map[string]config.PricingEntry
	metrics  *telemetry.Metrics

	locks  memory.KeyedMutex
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHistoryWindow sets how many stored messages are sent to the model.
// Zero or negative sends the whole conversation.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) { e.historyWindow = n }
}

// WithMaxDepth sets the default tool round limit.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithIdentity sets the identity rendered into the system instruction.
func WithIdentity(id prompts.Identity) Option {
	return func(e *Engine) { e.identity = id }
}

// WithLanguage sets the default reply language.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithUsageRecorder records token usage and cost for every answered
// message.
func WithUsageRecorder(r UsageRecorder, pricing map[string]config.PricingEntry) Option {
	return func(e *Engine) {
		e.recorder = r
		e.pricing = pricing
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine.
func NewEngine(store memory.Store, model llm.Client, registry *tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		model:         model,
		registry:      registry,
		language:      "en",
		historyWindow: DefaultHistoryWindow,
		maxDepth:      DefaultMaxDepth,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxDepth < 0 {
		e.maxDepth = DefaultMaxDepth
	}
	e.logger = e.logger.With("component", "agent")
	return e
}

// Handle answers one user message. The only errors returned are
// ErrEmptyMessage, store failures, memory.ErrConversationNotFound when
// RequireExisting is set, and ctx ending while another message for the
// same conversation is in progress. Model failures come back as a degraded
// apology; tool failures are reported to the model as results.
func (e *Engine) Handle(ctx context.Context, req Request) (*Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	depth := req.MaxDepth
	if depth < 0 {
		depth = e.maxDepth
	}
	lang := req.Language
	if lang == "" {
		lang = e.language
	}
	convID := req.ConversationID
	log := e.logger.With("conversation", convID)

	unlock, err := e.locks.Lock(ctx, convID)
	if err != nil {
		log.Warn("gave up waiting for conversation", "error", err)
		return nil, fmt.Errorf("wait for conversation: %w", err)
	}
	defer unlock()

	if req.RequireExisting {
		ok, err := e.store.Exists(ctx, convID)
		if err != nil {
			return nil, fmt.Errorf("check conversation: %w", err)
		}
		if !ok {
			return nil, memory.ErrConversationNotFound
		}
	}

	ctx, span := telemetry.StartHandleSpan(ctx, convID, depth)
	defer span.End()
	start := time.Now()

	if err := e.store.Append(ctx, convID, memory.Message{Role: memory.RoleUser, Content: text}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	history, err := e.store.Messages(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	window := BuildWindow(history, e.historyWindow)
	log.Debug("handling message", "history", len(history), "window", len(window), "max_depth", depth)

	out, err := e.run(ctx, text, window, prompts.SystemPrompt(e.identity, lang), depth)
	if err != nil {
		log.Error("model call failed", "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		e.count(func(m *telemetry.Metrics) { m.ModelFailures.Add(ctx, 1) })

		// The apology is persisted even when ctx was cancelled so every user
		// turn has a paired assistant turn.
		apology := memory.Message{Role: memory.RoleAssistant, Content: prompts.ErrorApology}
		if err := e.store.Append(context.WithoutCancel(ctx), convID, apology); err != nil {
			return nil, fmt.Errorf("persist apology: %w", err)
		}
		return &Result{Answer: prompts.ErrorApology, Language: lang, Degraded: true}, nil
	}

	reply := memory.Message{
		Role:        memory.RoleAssistant,
		Content:     out.answer,
		ToolCalls:   out.calls,
		ToolResults: out.results,
	}
	if err := e.store.Append(ctx, convID, reply); err != nil {
		return nil, fmt.Errorf("persist answer: %w", err)
	}

	elapsed := time.Since(start)
	log.Info("message handled",
		"tool_calls", len(out.calls),
		"model_calls", out.modelCalls,
		"depth_exhausted", out.depthExhausted,
		"total_tokens", out.usage.TotalTokens,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	e.count(func(m *telemetry.Metrics) {
		m.Handles.Add(ctx, 1)
		m.Tokens.Add(ctx, int64(out.usage.TotalTokens))
		m.HandleDuration.Record(ctx, elapsed.Seconds())
		if out.depthExhausted {
			m.DepthExhausted.Add(ctx, 1)
		}
	})
	e.recordUsage(ctx, convID, out)

	return &Result{
		Answer:         out.answer,
		Usage:          out.usage,
		Language:       lang,
		ToolCalls:      out.calls,
		ToolResults:    out.results,
		DepthExhausted: out.depthExhausted,
	}, nil
}

// Delete removes a conversation once no message for it is being handled.
func (e *Engine) Delete(ctx context.Context, conversationID string) (bool, error) {
	unlock, err := e.locks.Lock(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("wait for conversation: %w", err)
	}
	defer unlock()
	return e.store.Delete(ctx, conversationID)
}

// outcome accumulates state across the rounds of one Handle call.
type outcome struct {
	answer         string
	usage          llm.Usage
	calls          []llm.FunctionCall
	results        []tools.Result
	modelCalls     int
	depthExhausted bool
}

// run drives the model until it answers without function calls, the
// depth budget is spent, or a model call fails.
func (e *Engine) run(ctx context.Context, userText string, window []llm.Turn, system string, depth int) (*outcome, error) {
	defs := e.registry.Definitions()
	out := &outcome{}

	comp, err := e.complete(ctx, llm.Request{Turns: window, Tools: defs, SystemInstruction: system}, out)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	for comp.HasFunctionCalls() {
		if depth <= 0 {
			e.logger.Warn("maximum tool call depth reached", "pending_calls", len(comp.FunctionCalls))
			out.answer = prompts.DepthExhaustedMessage
			out.depthExhausted = true
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results := e.dispatch(ctx, comp.FunctionCalls)
		out.calls = append(out.calls, comp.FunctionCalls...)
		out.results = append(out.results, results...)

		turns := make([]llm.Turn, 0, len(frames)+3)
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Text: userText})
		for _, f := range frames {
			turns = append(turns, f.Turn())
		}
		turns = append(turns,
			llm.Turn{Role: llm.RoleAssistant, Text: FoldBack(comp.FunctionCalls, results)},
			llm.Turn{Role: llm.RoleUser, Text: prompts.ToolResultsInstruction},
		)
		depth--

		comp, err = e.complete(ctx, llm.Request{Turns: turns, Tools: defs, SystemInstruction: system}, out)
		if err != nil {
			return nil, err
		}
		if comp.HasFunctionCalls() {
			frames = append(frames, Frame{Text: comp.Text, Calls: comp.FunctionCalls})
		}
	}

	out.answer = comp.Text
	return out, nil
}

// complete makes one model call and adds its usage to out.
func (e *Engine) complete(ctx context.Context, req llm.Request, out *outcome) (*llm.Completion, error) {
	ctx, span := telemetry.StartCompleteSpan(ctx, e.model.Provider(), e.model.Model(), out.modelCalls)
	defer span.End()

	comp, err := e.model.Complete(ctx, req)
	out.modelCalls++
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out.usage = out.usage.Add(comp.Usage)
	e.logger.Debug("model responded",
		"round", out.modelCalls,
		"function_calls", len(comp.FunctionCalls),
		"prompt_tokens", comp.Usage.PromptTokens,
		"completion_tokens", comp.Usage.CompletionTokens,
	)
	return comp, nil
}

// dispatch executes calls in order, one result per call.
func (e *Engine) dispatch(ctx context.Context, calls []llm.FunctionCall) []tools.Result {
	results := make([]tools.Result, 0, len(calls))
	for _, call := range calls {
		tctx, span := telemetry.StartToolSpan(ctx, call.Name)
		res := e.registry.Execute(tctx, call.Name, call.Args)
		if !res.OK() {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
		e.count(func(m *telemetry.Metrics) { m.ToolCalls.Add(ctx, 1) })
		results = append(results, res)
	}
	return results
}

func (e *Engine) recordUsage(ctx context.Context, convID string, out *outcome) {
	if e.recorder == nil {
		return
	}
	rec := usage.Record{
		ConversationID: convID,
		Model:          e.model.Model(),
		Provider:       e.model.Provider(),
		InputTokens:    out.usage.PromptTokens,
		OutputTokens:   out.usage.CompletionTokens,
		TotalTokens:    out.usage.TotalTokens,
		ToolCalls:      len(out.calls),
		CostUSD:        usage.ComputeCost(e.model.Model(), out.usage.PromptTokens, out.usage.CompletionTokens, e.pricing),
	}
	if err := e.recorder.Record(ctx, rec); err != nil {
		e.logger.Warn("failed to record usage", "conversation", convID, "error", err)
	}
}

func (e *Engine) count(f func(*telemetry.Metrics)) {
	if e.metrics != nil {
		f(e.metrics)
	}
}
