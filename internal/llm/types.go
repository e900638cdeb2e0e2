// Package llm provides the model clients Sanjeevni drives.
package llm

import (
	"encoding/json"
)

// Role tags a turn as coming from the user or the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message submitted to the model.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ToolDefinition is the catalog entry a model sees for one tool. Parameters
// is a JSON-schema object with "properties" and "required".
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Properties returns the schema's property map, or an empty map.
func (d ToolDefinition) Properties() map[string]any {
	if p, ok := d.Parameters["properties"].(map[string]any); ok {
		return p
	}
	return map[string]any{}
}

// Required returns the schema's required property names.
func (d ToolDefinition) Required() []string {
	switch r := d.Parameters["required"].(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, v := range r {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"` // provider-assigned, may be empty
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Usage counts tokens for one or more model calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// IsZero reports whether no tokens were counted.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// newUsage fills TotalTokens when a provider reports only the two halves.
func newUsage(prompt, completion, total int) Usage {
	if total == 0 {
		total = prompt + completion
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

// Request is one model invocation.
type Request struct {
	Turns             []Turn
	Tools             []ToolDefinition
	SystemInstruction string
}

// Completion is the provider-neutral model response.
type Completion struct {
	Text          string
	FunctionCalls []FunctionCall
	Usage         Usage
	Model         string
	StopReason    string
}

// HasFunctionCalls reports whether the model asked for tools.
func (c *Completion) HasFunctionCalls() bool {
	return c != nil && len(c.FunctionCalls) > 0
}

// decodeArgs parses a JSON argument object. Empty input yields an empty map.
func decodeArgs(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
