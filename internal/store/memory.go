package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/underla/helpdesk/internal/domain"
)

// MemoryStore is an in-memory ConversationStore. Used in tests and for
// throwaway dev runs; nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message
	order         []string // conversation ids in creation order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.Message),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// CreateConversation inserts a new active conversation.
func (m *MemoryStore) CreateConversation(_ context.Context, params CreateConversationParams) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:               uuid.New().String(),
		Status:           domain.StatusActive,
		VisitorIP:        params.VisitorIP,
		VisitorUserAgent: params.VisitorUserAgent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.conversations[conv.ID] = conv
	m.order = append(m.order, conv.ID)

	out := *conv
	return &out, nil
}

// GetConversation returns a conversation by id, or nil if not found.
func (m *MemoryStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}
	out := *conv
	return &out, nil
}

// ListConversations returns conversations ordered by createdAt descending.
func (m *MemoryStore) ListConversations(_ context.Context, opts ListOptions) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	// Creation order is createdAt ascending, so walk it backwards.
	var all []domain.Conversation
	for i := len(m.order) - 1; i >= 0; i-- {
		conv := m.conversations[m.order[i]]
		if opts.Status != "" && conv.Status != opts.Status {
			continue
		}
		all = append(all, *conv)
	}

	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// UpdateConversation merges the given fields. Returns nil if not found.
func (m *MemoryStore) UpdateConversation(_ context.Context, id string, upd ConversationUpdate) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}

	if upd.Status != nil {
		conv.Status = *upd.Status
	}
	if upd.CollectedInfo != nil {
		conv.CollectedInfo = *upd.CollectedInfo
	}
	if upd.NeedsHuman != nil {
		conv.NeedsHuman = *upd.NeedsHuman
	}
	if upd.AssignedToID != nil {
		conv.AssignedToID = *upd.AssignedToID
	}
	if upd.ClosedAt != nil {
		t := upd.ClosedAt.UTC()
		conv.ClosedAt = &t
	}
	conv.UpdatedAt = time.Now().UTC()

	out := *conv
	return &out, nil
}

// CloseConversation sets status=closed and stamps closedAt.
func (m *MemoryStore) CloseConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return closeConversation(ctx, m, id)
}

// EscalateConversation sets status=escalated and needsHuman=true.
func (m *MemoryStore) EscalateConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return escalateConversation(ctx, m, id)
}

// AddMessage appends a message and bumps the conversation's message count
// under one lock.
func (m *MemoryStore) AddMessage(_ context.Context, conversationID string, role domain.Role, content string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	if conv, ok := m.conversations[conversationID]; ok {
		conv.MessageCount++
		conv.UpdatedAt = msg.CreatedAt
	}

	out := msg
	return &out, nil
}

// GetMessages returns messages in insertion order, which is createdAt
// ascending.
func (m *MemoryStore) GetMessages(_ context.Context, conversationID string, opts MessageOptions) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	msgs := m.messages[conversationID]
	if opts.Offset >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[opts.Offset:]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}

	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// ConversationStats counts conversations per status in one pass.
func (m *MemoryStore) ConversationStats(_ context.Context) (*domain.ConversationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats domain.ConversationStats
	for _, conv := range m.conversations {
		stats.Total++
		switch conv.Status {
		case domain.StatusActive:
			stats.Active++
		case domain.StatusWaiting:
			stats.Waiting++
		case domain.StatusEscalated:
			stats.Escalated++
		case domain.StatusClosed:
			stats.Closed++
		}
	}
	return &stats, nil
}
