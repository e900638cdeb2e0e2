package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/sanjeevni-ai/sanjeevni/internal/agent"
	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
	"github.com/sanjeevni-ai/sanjeevni/internal/memory"
)

// CreateConversationResponse is returned when a conversation is created.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
}

// ConversationSummary is one entry of the conversation list.
type ConversationSummary struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	MessageCount int    `json:"message_count"`
}

// HistoryMessage is one stored message as returned by the API.
type HistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// HistoryResponse is a conversation with its messages.
type HistoryResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []HistoryMessage `json:"messages"`
	CreatedAt      string           `json:"created_at"`
	LastActivity   string           `json:"last_activity"`
}

// MessageRequest is the body of a message post.
type MessageRequest struct {
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
	// MaxDepth overrides the tool round limit. Absent means the server
	// default.
	MaxDepth *int `json:"max_depth,omitempty"`
}

// MessageResponse is the answer to a message post.
type MessageResponse struct {
	Messages   []OutputMessage `json:"messages"`
	TokenUsage llm.Usage       `json:"token_usage"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *Server) handleConversationCreate(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Create(r.Context())
	if err != nil {
		s.logger.Error("create conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CreateConversationResponse{
		ConversationID: conv.ID,
		CreatedAt:      formatTime(conv.CreatedAt),
	}, s.logger)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	out := lo.Map(convs, func(c memory.Conversation, _ int) ConversationSummary {
		return ConversationSummary{
			ID:           c.ID,
			CreatedAt:    formatTime(c.CreatedAt),
			LastActivity: formatTime(c.LastActivity),
			MessageCount: c.MessageCount,
		}
	})
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversations": out}, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, ok := s.lookup(w, r, id)
	if !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		s.logger.Error("load messages failed", "conversation", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, HistoryResponse{
		ConversationID: id,
		Messages: lo.Map(msgs, func(m memory.Message, _ int) HistoryMessage {
			return HistoryMessage{Role: m.Role, Content: m.Content, Timestamp: formatTime(m.Timestamp)}
		}),
		CreatedAt:    formatTime(conv.CreatedAt),
		LastActivity: formatTime(conv.LastActivity),
	}, s.logger)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.agent.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("delete conversation failed", "conversation", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if !deleted {
		s.errorResponse(w, http.StatusNotFound, "Conversation not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{"success": true}, s.logger)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req MessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := s.lookup(w, r, id); !ok {
		return
	}

	resp, code, err := s.answer(r.Context(), id, req)
	if err != nil {
		s.errorResponse(w, code, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// answer runs one message through the agent under the in-flight bound.
// On failure it returns the HTTP status to report.
func (s *Server) answer(ctx context.Context, id string, req MessageRequest) (*MessageResponse, int, error) {
	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return nil, http.StatusServiceUnavailable, errors.New("server busy")
	}
	defer s.inflight.Release(1)

	depth := agent.UseDefaultDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	res, err := s.agent.Handle(ctx, agent.Request{
		ConversationID:  id,
		Text:            req.Message,
		Language:        req.Language,
		MaxDepth:        depth,
		RequireExisting: true,
	})
	switch {
	case errors.Is(err, agent.ErrEmptyMessage):
		return nil, http.StatusBadRequest, errors.New("Message must not be empty")
	case errors.Is(err, memory.ErrConversationNotFound):
		return nil, http.StatusNotFound, errors.New("Conversation not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, http.StatusServiceUnavailable, errors.New("request cancelled")
	}
	if err != nil {
		s.logger.Error("message handling failed", "conversation", id, "error", err)
		return nil, http.StatusInternalServerError, errors.New("failed to process message")
	}

	return &MessageResponse{
		Messages:   []OutputMessage{s.presenter.Present(ctx, res)},
		TokenUsage: res.Usage,
	}, http.StatusOK, nil
}

// lookup writes a 404 and reports false when the conversation is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, id string) (*memory.Conversation, bool) {
	conv, err := s.store.Get(r.Context(), id)
	if errors.Is(err, memory.ErrConversationNotFound) {
		s.errorResponse(w, http.StatusNotFound, "Conversation not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("conversation lookup failed", "conversation", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	return conv, true
}
