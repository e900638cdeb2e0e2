package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sanjeevni-ai/sanjeevni/internal/config"
	"github.com/sanjeevni-ai/sanjeevni/internal/httpkit"
)

// AnthropicClient calls the Anthropic Messages API through the official SDK.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewAnthropicClient creates a client for model. baseURL overrides the API
// endpoint when non-empty (tests point it at an httptest server).
func NewAnthropicClient(apiKey, baseURL, model string, maxTokens int, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Responses can take a long time before the first header; the
		// request context bounds the call.
		option.WithHTTPClient(httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(120*time.Second),
			httpkit.WithLogger(logger),
		)),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.With("provider", "anthropic"),
	}
}

// Provider implements [Client].
func (c *AnthropicClient) Provider() string { return "anthropic" }

// Model implements [Client].
func (c *AnthropicClient) Model() string { return c.model }

// buildAnthropicParams maps a Request onto the SDK parameters. Anthropic
// requires alternating roles, so consecutive same-role turns are merged.
func buildAnthropicParams(model string, maxTokens int, req Request) anthropic.MessageNewParams {
	var msgs []anthropic.MessageParam
	var lastRole Role
	var pending []string

	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if lastRole == RoleUser {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		}
		pending = nil
	}

	for _, t := range req.Turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := t.Role
		if role != RoleUser {
			role = RoleAssistant
		}
		if role != lastRole {
			flush()
			lastRole = role
		}
		pending = append(pending, t.Text)
	}
	flush()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}

	for _, d := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: d.Properties(),
					Required:   d.Required(),
				},
			},
		})
	}
	return params
}

// Complete implements [Client].
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	params := buildAnthropicParams(c.model, c.maxTokens, req)

	c.logger.Debug("sending messages request",
		"model", c.model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"system_len", len(req.SystemInstruction),
	)
	if c.logger.Enabled(ctx, config.LevelTrace) {
		if raw, err := json.Marshal(params); err == nil {
			c.logger.Log(ctx, config.LevelTrace, "messages request payload", "body", string(raw))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, &TransportError{Provider: c.Provider(), StatusCode: status, Err: err}
	}

	out, err := anthropicCompletion(msg)
	if err != nil {
		return nil, &TransportError{Provider: c.Provider(), Err: err}
	}

	c.logger.Debug("messages response",
		"model", out.Model,
		"stop_reason", out.StopReason,
		"function_calls", len(out.FunctionCalls),
		"input_tokens", out.Usage.PromptTokens,
		"output_tokens", out.Usage.CompletionTokens,
	)
	return out, nil
}

func anthropicCompletion(msg *anthropic.Message) (*Completion, error) {
	out := &Completion{
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage:      newUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), 0),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args, err := decodeArgs(b.Input)
			if err != nil {
				return nil, fmt.Errorf("decode input for %s: %w", b.Name, err)
			}
			out.FunctionCalls = append(out.FunctionCalls, FunctionCall{ID: b.ID, Name: b.Name, Args: args})
		}
	}
	out.Text = text.String()
	return out, nil
}

// Ping sends a one-token request. Anthropic has no unauthenticated health
// endpoint.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &TransportError{Provider: c.Provider(), Err: err}
	}
	// Rate limited still means reachable and authenticated.
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return nil
	}
	return &TransportError{Provider: c.Provider(), StatusCode: apiErr.StatusCode, Err: err}
}
