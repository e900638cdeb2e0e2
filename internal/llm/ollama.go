package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/sanjeevni-ai/sanjeevni/internal/config"
	"github.com/sanjeevni-ai/sanjeevni/internal/httpkit"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient talks to the Ollama /api/chat endpoint.
type OllamaClient struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a client for model on the Ollama server at
// baseURL. A nil httpClient gets an httpkit client with no overall timeout
// so that cancellation is left to the request context.
func NewOllamaClient(baseURL, model string, maxTokens int, httpClient *http.Client, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(5*time.Minute),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		)
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxTokens:  maxTokens,
		httpClient: httpClient,
		logger:     logger.With("provider", "ollama"),
	}
}

// Provider implements [Client].
func (c *OllamaClient) Provider() string { return "ollama" }

// Model implements [Client].
func (c *OllamaClient) Model() string { return c.model }

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"` // object, occasionally a JSON string
	} `json:"function"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaWireRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaWireResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

func buildOllamaRequest(model string, maxTokens int, req Request) ollamaWireRequest {
	msgs := make([]ollamaMessage, 0, len(req.Turns)+1)
	if req.SystemInstruction != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.SystemInstruction})
	}
	for _, t := range req.Turns {
		msgs = append(msgs, ollamaMessage{Role: string(t.Role), Content: t.Text})
	}

	wire := ollamaWireRequest{
		Model:    model,
		Messages: msgs,
		Tools: lo.Map(req.Tools, func(d ToolDefinition, _ int) ollamaTool {
			return ollamaTool{Type: "function", Function: d}
		}),
	}
	if maxTokens > 0 {
		wire.Options = &ollamaOptions{NumPredict: maxTokens}
	}
	return wire
}

// toCompletion converts the wire response. Models that print tool calls as
// JSON text instead of using tool_calls are handled here too; only names in
// known count.
func (w ollamaWireResponse) toCompletion(known []string) (*Completion, error) {
	out := &Completion{
		Text:       w.Message.Content,
		Model:      w.Model,
		StopReason: w.DoneReason,
		Usage:      newUsage(w.PromptEvalCount, w.EvalCount, 0),
	}

	for _, tc := range w.Message.ToolCalls {
		args, err := decodeOllamaArgs(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("decode arguments for %s: %w", tc.Function.Name, err)
		}
		out.FunctionCalls = append(out.FunctionCalls, FunctionCall{Name: tc.Function.Name, Args: args})
	}

	if len(out.FunctionCalls) == 0 && out.Text != "" {
		if parsed := parseTextToolCalls(out.Text, known); len(parsed) > 0 {
			out.FunctionCalls = parsed
			out.Text = ""
		}
	}
	return out, nil
}

func decodeOllamaArgs(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		trimmed = []byte(s)
	}
	return decodeArgs(trimmed)
}

// Complete implements [Client].
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	wire := buildOllamaRequest(c.model, c.maxTokens, req)

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("sending chat request",
		"model", c.model,
		"turns", len(req.Turns),
		"tools", len(req.Tools),
	)
	c.logger.Log(ctx, config.LevelTrace, "chat request payload", "body", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, c.transportErr(0, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportErr(0, fmt.Errorf("request failed: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, c.transportErr(resp.StatusCode, errors.New(strings.TrimSpace(msg)))
	}

	var wireResp ollamaWireResponse
	err = json.NewDecoder(resp.Body).Decode(&wireResp)
	httpkit.DrainAndClose(resp.Body, 4096)
	if err != nil {
		return nil, c.transportErr(0, fmt.Errorf("decode response: %w", err))
	}

	known := lo.Map(req.Tools, func(d ToolDefinition, _ int) string { return d.Name })
	out, err := wireResp.toCompletion(known)
	if err != nil {
		return nil, c.transportErr(0, err)
	}
	if out.Model == "" {
		out.Model = c.model
	}

	c.logger.Debug("chat response",
		"model", out.Model,
		"function_calls", len(out.FunctionCalls),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

func (c *OllamaClient) transportErr(status int, err error) error {
	return &TransportError{Provider: c.Provider(), StatusCode: status, Err: err}
}

// parseTextToolCalls extracts tool calls a model wrote into its content
// instead of the tool_calls field. Handles:
//   - a raw JSON object: {"name": "...", "arguments": {...}}
//   - a JSON array of such objects
//   - either form wrapped in <tool_call>...</tool_call>
//
// When valid is non-empty, calls to other names are dropped.
func parseTextToolCalls(content string, valid []string) []FunctionCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err != nil || len(calls) == 0 {
		var single textCall
		if err := json.Unmarshal([]byte(content), &single); err != nil {
			return nil
		}
		calls = []textCall{single}
	}

	var out []FunctionCall
	for _, tc := range calls {
		if tc.Name == "" {
			continue
		}
		if len(valid) > 0 && !lo.Contains(valid, tc.Name) {
			continue
		}
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, FunctionCall{Name: tc.Name, Args: args})
	}
	return out
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportErr(0, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)

	if resp.StatusCode != http.StatusOK {
		return c.transportErr(resp.StatusCode, errors.New("ping failed"))
	}
	return nil
}
