// Package memory provides conversation storage.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
	"github.com/sanjeevni-ai/sanjeevni/internal/tools"
)

// ErrConversationNotFound is returned when a conversation id is unknown.
var ErrConversationNotFound = errors.New("conversation not found")

// Roles stored on messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store persists conversations and their messages. Implementations are
// safe for concurrent use.
type Store interface {
	// Create starts a new conversation with a fresh id.
	Create(ctx context.Context) (*Conversation, error)
	// Append adds a message, creating the conversation if needed.
	Append(ctx context.Context, conversationID string, msg Message) error
	Exists(ctx context.Context, conversationID string) (bool, error)
	// Messages returns the conversation's messages in insertion order.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	// Get returns the conversation header, or ErrConversationNotFound.
	Get(ctx context.Context, conversationID string) (*Conversation, error)
	// Delete removes a conversation and its messages. It reports whether
	// anything was deleted.
	Delete(ctx context.Context, conversationID string) (bool, error)
	// List returns all conversations, most recent activity first.
	List(ctx context.Context) ([]Conversation, error)
	Close() error
}

// Conversation is a conversation header.
type Conversation struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Message is one persisted turn. Assistant messages carry the tool calls
// executed while producing them, paired index-wise with their results.
type Message struct {
	ID          string             `json:"id"`
	Role        string             `json:"role"` // user, assistant
	Content     string             `json:"content"`
	Timestamp   time.Time          `json:"timestamp"`
	ToolCalls   []llm.FunctionCall `json:"tool_calls,omitempty"`
	ToolResults []tools.Result     `json:"tool_results,omitempty"`
}
