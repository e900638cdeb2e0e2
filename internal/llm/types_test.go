package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestUsage_Add(t *testing.T) {
	a := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	b := Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}

	got := a.Add(b)
	want := Usage{PromptTokens: 13, CompletionTokens: 7, TotalTokens: 20}
	if got != want {
		t.Errorf("Add = %+v, want %+v", got, want)
	}
	if !(Usage{}).IsZero() || got.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestNewUsage_FillsTotal(t *testing.T) {
	if got := newUsage(4, 6, 0); got.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, want 10", got.TotalTokens)
	}
	if got := newUsage(4, 6, 12); got.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want reported 12", got.TotalTokens)
	}
}

func TestToolDefinition_Required(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   []string
	}{
		{"strings", map[string]any{"required": []string{"a", "b"}}, []string{"a", "b"}},
		{"decoded json", map[string]any{"required": []any{"a", 3, "c"}}, []string{"a", "c"}},
		{"absent", map[string]any{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToolDefinition{Parameters: tt.params}.Required()
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Required() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolDefinition_PropertiesDefault(t *testing.T) {
	if p := (ToolDefinition{}).Properties(); p == nil || len(p) != 0 {
		t.Errorf("Properties() = %v, want empty map", p)
	}
}

func TestDecodeArgs(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		args, err := decodeArgs([]byte(raw))
		if err != nil || args == nil || len(args) != 0 {
			t.Errorf("decodeArgs(%q) = %v, %v; want empty map", raw, args, err)
		}
	}
	if _, err := decodeArgs([]byte("[1,2]")); err == nil {
		t.Error("decodeArgs of array should error")
	}
}

func TestTransportError(t *testing.T) {
	inner := errors.New("connection refused")
	err := fmt.Errorf("complete: %w", &TransportError{Provider: "ollama", StatusCode: 502, Err: inner})

	if !IsTransportError(err) {
		t.Fatal("IsTransportError = false, want true")
	}
	if !errors.Is(err, inner) {
		t.Error("TransportError should unwrap to the cause")
	}
	if got := err.Error(); got != "complete: ollama: status 502: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}
