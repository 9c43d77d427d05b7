package gateway

import "github.com/underla/helpdesk/internal/domain"

// Frame types for the visitor WebSocket protocol.
const (
	FrameTypeMessage   = "message"
	FrameTypeClear     = "clear"
	FrameTypeConnected = "connected"
	FrameTypeResponse  = "response"
	FrameTypeCleared   = "cleared"
	FrameTypeError     = "error"
)

// ClientFrame is an inbound frame from the visitor widget. Type
// discriminates: "message" carries content, "clear" carries nothing.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ConnectedFrame acknowledges a connection or a conversation bind.
// ConversationID is deliberately not omitempty: the initial frame carries an
// empty id, which clients must read as "no conversation yet".
type ConnectedFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// ResponseFrame carries an assistant or agent reply to the visitor.
type ResponseFrame struct {
	Type           string               `json:"type"`
	Content        string               `json:"content"`
	ConversationID string               `json:"conversationId"`
	CollectedInfo  domain.CollectedInfo `json:"collectedInfo"`
	NeedsHuman     bool                 `json:"needsHuman"`
	InfoComplete   bool                 `json:"infoComplete"`
}

// ClearedFrame acknowledges a context reset.
type ClearedFrame struct {
	Type string `json:"type"`
}

// ErrorFrame reports a protocol-level problem without dropping the socket.
type ErrorFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func connectedFrame(conversationID string) ConnectedFrame {
	return ConnectedFrame{Type: FrameTypeConnected, ConversationID: conversationID}
}

func clearedFrame() ClearedFrame {
	return ClearedFrame{Type: FrameTypeCleared}
}

func errorFrame(content string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Content: content}
}
