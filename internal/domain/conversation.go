// Package domain defines the conversation and message model shared by the
// store, the chat responder, and the gateway.
package domain

import "time"

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusWaiting   Status = "waiting"
	StatusClosed    Status = "closed"
	StatusEscalated Status = "escalated"
)

// Valid reports whether s is one of the known conversation statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWaiting, StatusClosed, StatusEscalated:
		return true
	}
	return false
}

// Role identifies the author of a message. RoleSystem is a human agent
// message sent through the dashboard, not a diagnostic channel.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// CollectedInfo holds the structured fields progressively extracted from
// visitor messages. Fields accumulate monotonically over a conversation.
type CollectedInfo struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Merge returns the union of prior and update: fields set in update win,
// fields missing from update keep their prior value. An extraction pass
// that found nothing for a field never erases it.
func (prior CollectedInfo) Merge(update CollectedInfo) CollectedInfo {
	out := prior
	if update.Name != "" {
		out.Name = update.Name
	}
	if update.Email != "" {
		out.Email = update.Email
	}
	if update.Reason != "" {
		out.Reason = update.Reason
	}
	if update.Phone != "" {
		out.Phone = update.Phone
	}
	return out
}

// Complete reports whether name, email, and reason have all been collected.
// Phone is optional and does not count toward completeness.
func (i CollectedInfo) Complete() bool {
	return i.Name != "" && i.Email != "" && i.Reason != ""
}

// Conversation is the persisted unit of a visitor's support interaction,
// spanning possibly many socket connections.
type Conversation struct {
	ID               string        `json:"id"`
	Status           Status        `json:"status"`
	CollectedInfo    CollectedInfo `json:"collectedInfo"`
	NeedsHuman       bool          `json:"needsHuman"`
	AssignedToID     string        `json:"assignedToId,omitempty"`
	VisitorIP        string        `json:"visitorIp,omitempty"`
	VisitorUserAgent string        `json:"visitorUserAgent,omitempty"`
	MessageCount     int           `json:"messageCount"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	ClosedAt         *time.Time    `json:"closedAt,omitempty"`
}

// Assigned reports whether a human agent has taken over the conversation.
func (c *Conversation) Assigned() bool {
	return c.AssignedToID != ""
}

// Message is a single immutable turn in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationStats is a one-pass count of conversations per status.
type ConversationStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Escalated int `json:"escalated"`
	Closed    int `json:"closed"`
}
