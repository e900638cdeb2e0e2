package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sanjeevni-ai/sanjeevni/internal/httpkit"
)

// LangChainClient adapts a langchaingo model (OpenAI or Gemini) to [Client].
type LangChainClient struct {
	provider  string
	model     string
	maxTokens int
	llm       llms.Model
	logger    *slog.Logger
}

// NewLangChainClient wraps an already constructed langchaingo model.
func NewLangChainClient(provider, model string, maxTokens int, m llms.Model, logger *slog.Logger) *LangChainClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LangChainClient{
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
		llm:       m,
		logger:    logger.With("provider", provider),
	}
}

// NewOpenAIClient builds an OpenAI-compatible backend. baseURL may point at
// any server speaking the OpenAI chat completions API.
func NewOpenAIClient(apiKey, baseURL, model string, maxTokens int, logger *slog.Logger) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithLogger(logger))),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewLangChainClient("openai", model, maxTokens, m, logger), nil
}

// NewGeminiClient builds a Google Gemini backend.
func NewGeminiClient(ctx context.Context, apiKey, model string, maxTokens int, logger *slog.Logger) (*LangChainClient, error) {
	m, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewLangChainClient("gemini", model, maxTokens, m, logger), nil
}

// Provider implements [Client].
func (c *LangChainClient) Provider() string { return c.provider }

// Model implements [Client].
func (c *LangChainClient) Model() string { return c.model }

func buildLangChainMessages(req Request) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(req.Turns)+1)
	if req.SystemInstruction != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemInstruction))
	}
	for _, t := range req.Turns {
		kind := llms.ChatMessageTypeAI
		if t.Role == RoleUser {
			kind = llms.ChatMessageTypeHuman
		}
		msgs = append(msgs, llms.TextParts(kind, t.Text))
	}
	return msgs
}

func buildLangChainTools(defs []ToolDefinition) []llms.Tool {
	return lo.Map(defs, func(d ToolDefinition, _ int) llms.Tool {
		return llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	})
}

// Complete implements [Client].
func (c *LangChainClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := buildLangChainMessages(req)

	var opts []llms.CallOption
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(buildLangChainTools(req.Tools)))
	}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	c.logger.Debug("sending generate request",
		"model", c.model,
		"messages", len(msgs),
		"tools", len(req.Tools),
	)

	resp, err := c.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, &TransportError{Provider: c.provider, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &TransportError{Provider: c.provider, Err: fmt.Errorf("empty response")}
	}

	out, err := langChainCompletion(resp)
	if err != nil {
		return nil, &TransportError{Provider: c.provider, Err: err}
	}
	out.Model = c.model

	c.logger.Debug("generate response",
		"model", c.model,
		"function_calls", len(out.FunctionCalls),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
	)
	return out, nil
}

func langChainCompletion(resp *llms.ContentResponse) (*Completion, error) {
	out := &Completion{}
	var text []string

	for _, choice := range resp.Choices {
		if choice.Content != "" {
			text = append(text, choice.Content)
		}
		if out.StopReason == "" {
			out.StopReason = choice.StopReason
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			args, err := decodeArgs([]byte(tc.FunctionCall.Arguments))
			if err != nil {
				return nil, fmt.Errorf("decode arguments for %s: %w", tc.FunctionCall.Name, err)
			}
			out.FunctionCalls = append(out.FunctionCalls, FunctionCall{
				ID:   tc.ID,
				Name: tc.FunctionCall.Name,
				Args: args,
			})
		}
		out.Usage = out.Usage.Add(generationUsage(choice.GenerationInfo))
	}

	out.Text = strings.Join(text, "\n")
	return out, nil
}

// generationUsage reads token counts from GenerationInfo. OpenAI reports
// PromptTokens/CompletionTokens/TotalTokens; Gemini reports
// input_tokens/output_tokens/total_tokens.
func generationUsage(info map[string]any) Usage {
	prompt := firstInt(info, "PromptTokens", "input_tokens")
	completion := firstInt(info, "CompletionTokens", "output_tokens")
	total := firstInt(info, "TotalTokens", "total_tokens")
	return newUsage(prompt, completion, total)
}

func firstInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// Ping sends a minimal generate request; langchaingo exposes no health
// endpoint.
func (c *LangChainClient) Ping(ctx context.Context) error {
	_, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "ping")},
		llms.WithMaxTokens(1),
	)
	if err != nil {
		return &TransportError{Provider: c.provider, Err: err}
	}
	return nil
}
