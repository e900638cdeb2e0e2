package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
	"github.com/sanjeevni-ai/sanjeevni/internal/memory"
	"github.com/sanjeevni-ai/sanjeevni/internal/prompts"
	"github.com/sanjeevni-ai/sanjeevni/internal/tools"
)

// BuildWindow returns the last n messages as model turns, oldest first.
// n <= 0 keeps every message. User messages become user turns and
// everything else an assistant turn; messages with no content are dropped
// after windowing.
func BuildWindow(messages []memory.Message, n int) []llm.Turn {
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	nonEmpty := lo.Filter(messages, func(m memory.Message, _ int) bool {
		return strings.TrimSpace(m.Content) != ""
	})
	return lo.Map(nonEmpty, func(m memory.Message, _ int) llm.Turn {
		role := llm.RoleAssistant
		if m.Role == memory.RoleUser {
			role = llm.RoleUser
		}
		return llm.Turn{Role: role, Text: m.Content}
	})
}

// Frame is one intermediate model response that asked for more tools.
// Frames only live for the duration of one Handle call.
type Frame struct {
	Text  string
	Calls []llm.FunctionCall
}

// Turn renders the frame as an assistant turn.
func (f Frame) Turn() llm.Turn {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		names := lo.Map(f.Calls, func(c llm.FunctionCall, _ int) string { return c.Name })
		text = "Requested tools: " + strings.Join(names, ", ")
	}
	return llm.Turn{Role: llm.RoleAssistant, Text: text}
}

// FoldBack narrates each call and its result for the model. calls and
// results are paired index-wise.
func FoldBack(calls []llm.FunctionCall, results []tools.Result) string {
	var b strings.Builder
	b.WriteString(prompts.ToolResultsPreamble)
	for i, call := range calls {
		fmt.Fprintf(&b, "\n\nTool: %s\n", call.Name)
		fmt.Fprintf(&b, "Parameters: %s\n", indentJSON(call.Args))
		if i < len(results) {
			fmt.Fprintf(&b, "Result: %s", indentJSON(results[i]))
		}
	}
	return b.String()
}

func indentJSON(v any) string {
	if m, ok := v.(map[string]any); ok && m == nil {
		v = map[string]any{}
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
