// Package store provides conversation and message persistence behind a
// backend-neutral interface, with Postgres, SQLite and in-memory
// implementations.
package store

import (
	"context"
	"time"

	"github.com/underla/helpdesk/internal/domain"
)

const (
	// DefaultListLimit caps conversation listings when no limit is given.
	DefaultListLimit = 50
	// DefaultMessageLimit caps message listings when no limit is given.
	DefaultMessageLimit = 200
)

// CreateConversationParams carries the optional visitor metadata captured
// at connection time.
type CreateConversationParams struct {
	VisitorIP        string
	VisitorUserAgent string
}

// ConversationUpdate is a partial update: nil fields are left untouched.
type ConversationUpdate struct {
	Status        *domain.Status
	CollectedInfo *domain.CollectedInfo
	NeedsHuman    *bool
	AssignedToID  *string
	ClosedAt      *time.Time
}

// ListOptions filters and pages a conversation listing. A zero Limit means
// DefaultListLimit; an empty Status matches all statuses.
type ListOptions struct {
	Status domain.Status
	Limit  int
	Offset int
}

// MessageOptions pages a message listing. A zero Limit means
// DefaultMessageLimit.
type MessageOptions struct {
	Limit  int
	Offset int
}

// ConversationStore is the sole owner of conversation and message
// persistence. Lookups for an unknown id return (nil, nil); errors are
// reserved for storage failures and propagate to the caller unretried.
type ConversationStore interface {
	// CreateConversation inserts a new active conversation with empty
	// collected info and a zero message count.
	CreateConversation(ctx context.Context, params CreateConversationParams) (*domain.Conversation, error)

	// GetConversation returns a conversation by id, or nil if not found.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// ListConversations returns conversations ordered by createdAt
	// descending.
	ListConversations(ctx context.Context, opts ListOptions) ([]domain.Conversation, error)

	// UpdateConversation merges the given fields into the row and bumps
	// updatedAt. Returns the updated row, or nil if not found.
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*domain.Conversation, error)

	// CloseConversation sets status=closed and stamps closedAt. Closing an
	// already-closed conversation re-stamps closedAt; it is not an error.
	CloseConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// EscalateConversation sets status=escalated and needsHuman=true.
	EscalateConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// AddMessage inserts a message and increments the parent conversation's
	// messageCount as one atomic unit.
	AddMessage(ctx context.Context, conversationID string, role domain.Role, content string) (*domain.Message, error)

	// GetMessages returns messages ordered by createdAt ascending.
	GetMessages(ctx context.Context, conversationID string, opts MessageOptions) ([]domain.Message, error)

	// ConversationStats counts conversations per status in one pass.
	ConversationStats(ctx context.Context) (*domain.ConversationStats, error)

	// Close releases the backend's resources.
	Close() error
}
