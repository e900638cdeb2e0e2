package api

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/sanjeevni-ai/sanjeevni/internal/memory"
)

// renderTranscript renders messages as Markdown and converts it to an
// HTML page. Message content is treated as Markdown.
func renderTranscript(title string, msgs []memory.Message) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", title)
	for _, m := range msgs {
		speaker := "Assistant"
		if m.Role == memory.RoleUser {
			speaker = "User"
		}
		fmt.Fprintf(&md, "### %s", speaker)
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&md, " · %s", m.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		}
		md.WriteString("\n\n")
		md.WriteString(m.Content)
		md.WriteString("\n\n")
		if len(m.ToolCalls) > 0 {
			names := make([]string, len(m.ToolCalls))
			for i, c := range m.ToolCalls {
				names[i] = "`" + c.Name + "`"
			}
			fmt.Fprintf(&md, "_Tools used: %s_\n\n", strings.Join(names, ", "))
		}
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &body); err != nil {
		return "", err
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 48em; margin: auto;">
%s
</body></html>`, html.EscapeString(title), body.String()), nil
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.lookup(w, r, id); !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		s.logger.Error("load messages failed", "conversation", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	page, err := renderTranscript("Conversation "+id, msgs)
	if err != nil {
		s.logger.Error("render transcript failed", "conversation", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to render transcript")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		s.logger.Debug("failed to write transcript", "error", err)
	}
}
