package prompts

import (
	"fmt"
	"strings"
)

// Identity describes who the assistant is. It is rendered into the system
// instruction sent with every model call.
type Identity struct {
	Name         string
	Version      string
	Description  string
	Purpose      string
	Capabilities []string
}

const systemTemplate = `You are %s, version %s, %s.

Your primary purpose is: %s

When responding to users, remember that you specialize in:
%s

Always respond in a professional, careful manner. Use the available tools when the user asks for data, analysis or a report, and base your answer on what the tools return.`

// SystemPrompt renders the system instruction for id. A non-empty language
// other than English adds a reply-language directive.
func SystemPrompt(id Identity, language string) string {
	var caps strings.Builder
	for i, c := range id.Capabilities {
		if i > 0 {
			caps.WriteByte('\n')
		}
		caps.WriteString("- ")
		caps.WriteString(c)
	}

	desc := id.Description
	if desc == "" {
		desc = "a helpful assistant"
	}

	prompt := fmt.Sprintf(systemTemplate, id.Name, id.Version, lowerFirst(desc), id.Purpose, caps.String())

	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "en") && !strings.EqualFold(lang, "english") {
		prompt += fmt.Sprintf("\n\nReply in the user's language (%s).", lang)
	}
	return prompt
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	// "An advanced assistant" reads better mid-sentence as "an advanced assistant".
	if strings.HasPrefix(s, "An ") || strings.HasPrefix(s, "A ") {
		return strings.ToLower(s[:1]) + s[1:]
	}
	return s
}
