package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		validTools []string
		wantCount  int
		wantName   string
	}{
		{name: "empty content", content: "", wantCount: 0},
		{name: "whitespace only", content: "   \n\t  ", wantCount: 0},
		{name: "plain text", content: "Please describe your symptoms.", wantCount: 0},
		{
			name:      "single object",
			content:   `{"name": "analyze_metrics", "arguments": {"data_source": "sales", "metrics": ["revenue"]}}`,
			wantCount: 1,
			wantName:  "analyze_metrics",
		},
		{
			name:      "array",
			content:   `[{"name": "generate_kpi_dashboard", "arguments": {}}, {"name": "analyze_metrics", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "generate_kpi_dashboard",
		},
		{
			name:      "tagged with preamble",
			content:   `Let me build that. <tool_call>{"name": "generate_pdf_table", "arguments": {"data": {"a": 1}}}</tool_call>`,
			wantCount: 1,
			wantName:  "generate_pdf_table",
		},
		{
			name:      "tag without closing",
			content:   `<tool_call>{"name": "generate_kpi_dashboard", "arguments": {}}`,
			wantCount: 1,
			wantName:  "generate_kpi_dashboard",
		},
		{name: "malformed", content: `{"name": "analyze_metrics", "arguments": {`, wantCount: 0},
		{name: "no name", content: `{"foo": "bar", "arguments": {}}`, wantCount: 0},
		{
			name:       "unknown name rejected",
			content:    `{"name": "drop_tables", "arguments": {}}`,
			validTools: []string{"analyze_metrics"},
			wantCount:  0,
		},
		{
			name:       "mixed valid and invalid",
			content:    `[{"name": "analyze_metrics", "arguments": {}}, {"name": "nope", "arguments": {}}]`,
			validTools: []string{"analyze_metrics"},
			wantCount:  1,
			wantName:   "analyze_metrics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content, tt.validTools)
			if len(got) != tt.wantCount {
				t.Fatalf("parseTextToolCalls() returned %d calls, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 {
				if got[0].Name != tt.wantName {
					t.Errorf("first call = %q, want %q", got[0].Name, tt.wantName)
				}
				if got[0].Args == nil {
					t.Error("Args should never be nil")
				}
			}
		})
	}
}

func TestOllamaWireResponse_StringArguments(t *testing.T) {
	raw := `{
		"model": "qwen3:4b",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [{"function": {"name": "analyze_metrics", "arguments": "{\"data_source\":\"sales\"}"}}]
		},
		"done": true,
		"prompt_eval_count": 30,
		"eval_count": 8
	}`

	var wire ollamaWireResponse
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := wire.toCompletion(nil)
	if err != nil {
		t.Fatalf("toCompletion: %v", err)
	}
	if len(out.FunctionCalls) != 1 || out.FunctionCalls[0].Args["data_source"] != "sales" {
		t.Errorf("FunctionCalls = %+v", out.FunctionCalls)
	}
	if out.Usage != (Usage{PromptTokens: 30, CompletionTokens: 8, TotalTokens: 38}) {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaWireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		io.WriteString(w, `{
			"model": "qwen3:4b",
			"message": {"role": "assistant", "content": "",
				"tool_calls": [{"function": {"name": "generate_kpi_dashboard", "arguments": {}}}]},
			"done": true, "done_reason": "stop",
			"prompt_eval_count": 42, "eval_count": 15
		}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "qwen3:4b", 256, srv.Client(), nil)
	out, err := c.Complete(context.Background(), Request{
		Turns:             []Turn{{Role: RoleUser, Text: "show my KPIs"}},
		Tools:             []ToolDefinition{{Name: "generate_kpi_dashboard", Description: "KPIs", Parameters: map[string]any{"type": "object"}}},
		SystemInstruction: "You are a test.",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "show my KPIs" {
		t.Errorf("request messages = %+v", got.Messages)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "generate_kpi_dashboard" {
		t.Errorf("request tools = %+v", got.Tools)
	}
	if got.Stream {
		t.Error("request should not stream")
	}
	if got.Options == nil || got.Options.NumPredict != 256 {
		t.Errorf("Options = %+v, want num_predict 256", got.Options)
	}

	if !out.HasFunctionCalls() || out.FunctionCalls[0].Name != "generate_kpi_dashboard" {
		t.Errorf("FunctionCalls = %+v", out.FunctionCalls)
	}
	if out.Usage.TotalTokens != 57 {
		t.Errorf("TotalTokens = %d, want 57", out.Usage.TotalTokens)
	}
}

func TestOllamaClient_CompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "missing", 0, srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{Turns: []Turn{{Role: RoleUser, Text: "hi"}}})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", te.StatusCode)
	}
	if !strings.Contains(te.Error(), "model not found") {
		t.Errorf("error %q should carry the response body", te.Error())
	}
}

func TestOllamaClient_CompleteCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewOllamaClient(srv.URL, "qwen3:4b", 0, srv.Client(), nil)
	_, err := c.Complete(ctx, Request{Turns: []Turn{{Role: RoleUser, Text: "hi"}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOllamaClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			io.WriteString(w, `{"models":[]}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "qwen3:4b", 0, srv.Client(), nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if c.Provider() != "ollama" || c.Model() != "qwen3:4b" {
		t.Errorf("Provider/Model = %s/%s", c.Provider(), c.Model())
	}
}
