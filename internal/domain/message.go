package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message represents one entry in a chat session. Messages are append-only;
// SequenceNo is assigned by the repository and is strictly increasing with no
// gaps within a session.
type Message struct {
	ID          uuid.UUID      `json:"id"`
	SessionID   uuid.UUID      `json:"session_id"`
	Role        MessageRole    `json:"role"`
	Content     string         `json:"content"`
	ToolName    string         `json:"tool_name,omitempty"`
	ToolPayload map[string]any `json:"tool_payload,omitempty"`
	SequenceNo  int            `json:"sequence_no"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	// AppendTurn persists the given messages in order, assigning consecutive
	// sequence numbers after the session's current maximum. All messages are
	// written in one transaction or not at all.
	AppendTurn(ctx context.Context, sessionID uuid.UUID, messages []*Message) error

	// RecentBySession returns at most limit messages for the session, oldest first.
	RecentBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)

	// ListBySession returns session history, oldest first, capped at limit.
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)

	// MostFrequentQuestions returns the user's most repeated questions.
	MostFrequentQuestions(ctx context.Context, userID uuid.UUID, limit int) ([]string, error)
}
