// Package conversation stores ask/answer history per conversation.
package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one user query or assistant response in a conversation.
type Message struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string
	Timestamp      time.Time
	Site           string
	Query          string // user messages
	Results        string // assistant messages: JSON-encoded final results
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(conversationID, userID, role string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Timestamp:      time.Now().UTC(),
	}
}

// Storage persists conversation messages.
type Storage interface {
	// StoreMessage stores a conversation message.
	StoreMessage(ctx context.Context, msg *Message) error

	// Messages returns up to limit messages for a conversation, ordered by
	// timestamp.
	Messages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// UserConversations returns conversation IDs for a user, most recent
	// first.
	UserConversations(ctx context.Context, userID string, limit int) ([]string, error)

	// DeleteConversation removes a conversation and returns the number of
	// deleted messages.
	DeleteConversation(ctx context.Context, conversationID string) (int, error)

	// Close releases resources.
	Close() error
}
