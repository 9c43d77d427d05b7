package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/underla/helpdesk/internal/chat"
	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/logging"
)

// Session is one live visitor WebSocket connection. It starts unbound (no
// conversation) and binds to a conversation id on the first real message;
// there is no way back to unbound. History and collected info are the AI
// context window, reset by "clear" without touching the persisted
// conversation.
type Session struct {
	ConnID           string
	VisitorIP        string
	VisitorUserAgent string
	ConnectedAt      time.Time

	// history is only touched by the connection's read loop, which processes
	// one frame fully before reading the next. No lock needed.
	history []chat.Turn

	mu     sync.Mutex // guards socket writes and closed
	socket *websocket.Conn
	closed bool

	stateMu        sync.RWMutex // guards conversationID and info
	conversationID string
	info           domain.CollectedInfo

	log *logging.Logger
}

// NewSession wraps a freshly upgraded connection.
func NewSession(conn *websocket.Conn, visitorIP, visitorUA string, log *logging.Logger) *Session {
	return &Session{
		ConnID:           uuid.New().String(),
		VisitorIP:        visitorIP,
		VisitorUserAgent: visitorUA,
		ConnectedAt:      time.Now(),
		socket:           conn,
		log:              log,
	}
}

// Send writes a frame to the socket. Safe for concurrent use; writing to a
// closed session is a silent no-op so late AI turns and bridge pushes cannot
// hit a dead connection.
func (s *Session) Send(frame any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.socket.WriteJSON(frame)
}

// Close closes the underlying socket. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.socket.Close()
}

// ConversationID returns the bound conversation id, or "" while unbound.
func (s *Session) ConversationID() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.conversationID
}

// Bound reports whether the session has a conversation.
func (s *Session) Bound() bool {
	return s.ConversationID() != ""
}

// bind attaches the session to its conversation. Called once, from the read
// loop.
func (s *Session) bind(conversationID string) {
	s.stateMu.Lock()
	s.conversationID = conversationID
	s.stateMu.Unlock()
}

// Info returns the last-known collected info snapshot.
func (s *Session) Info() domain.CollectedInfo {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.info
}

func (s *Session) setInfo(info domain.CollectedInfo) {
	s.stateMu.Lock()
	s.info = info
	s.stateMu.Unlock()
}

// resetContext clears the in-memory history and collected info. The
// persisted conversation, if any, is untouched: later messages keep
// appending to it.
func (s *Session) resetContext() {
	s.history = nil
	s.setInfo(domain.CollectedInfo{})
}

// SessionRegistry tracks live visitor sessions by connection id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *logging.Logger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(log *logging.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		log:      log,
	}
}

// Add registers a session.
func (r *SessionRegistry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ConnID] = s
	r.log.Info().Str("connId", s.ConnID).Str("ip", s.VisitorIP).Msg("visitor connected")
}

// Remove unregisters a session by connection id.
func (r *SessionRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
	r.log.Info().Str("connId", connID).Msg("visitor disconnected")
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FindByConversation returns the live session bound to the given
// conversation, or nil. At most one socket per conversation is expected; if
// that is ever violated the first match wins.
func (r *SessionRegistry) FindByConversation(conversationID string) *Session {
	if conversationID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ConversationID() == conversationID {
			return s
		}
	}
	return nil
}

// CloseAll closes every live session.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
