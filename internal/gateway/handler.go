package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/underla/helpdesk/internal/chat"
	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/store"
)

// readLoop processes inbound frames strictly in order: a message's
// persistence and AI round trip complete before the next frame is read.
// That sequencing keeps collectedInfo merges and message counts consistent
// within one connection.
func (s *Server) readLoop(ctx context.Context, sess *Session) {
	for {
		_, raw, err := sess.socket.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", sess.ConnID).Msg("visitor closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", sess.ConnID).Msg("read error")
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			sess.Send(errorFrame("Invalid JSON"))
			continue
		}

		switch frame.Type {
		case FrameTypeClear:
			sess.resetContext()
			sess.Send(clearedFrame())
		case FrameTypeMessage:
			s.handleMessage(ctx, sess, frame.Content)
		default:
			sess.Send(errorFrame("Tipo de mensaje desconocido: " + frame.Type))
		}
	}
}

// handleMessage runs one visitor turn: bind the conversation if needed,
// persist the user message, and — unless a human has taken over — ask the
// responder for a reply and persist its outcome.
func (s *Server) handleMessage(ctx context.Context, sess *Session, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		sess.Send(errorFrame("Empty message"))
		return
	}

	// Lazy conversation creation: only on the first real message. A failure
	// here drops the message; the visitor can retry.
	if !sess.Bound() {
		conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
			VisitorIP:        sess.VisitorIP,
			VisitorUserAgent: sess.VisitorUserAgent,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("failed to create conversation")
			sess.Send(errorFrame("Error al iniciar conversación."))
			return
		}
		sess.bind(conv.ID)
		sess.Send(connectedFrame(conv.ID))
	}

	conversationID := sess.ConversationID()
	sess.history = append(sess.history, chat.Turn{Role: domain.RoleUser, Content: content})

	// Best-effort: a persistence failure must not block the reply.
	if _, err := s.store.AddMessage(ctx, conversationID, domain.RoleUser, content); err != nil {
		s.log.Error().Err(err).Str("conversation", conversationID).Msg("failed to persist user message")
	}

	// A human agent in control means no AI reply; the agent answers through
	// the REST + bridge path. A failed lookup fails open toward the AI.
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		s.log.Error().Err(err).Str("conversation", conversationID).Msg("failed to check assignment")
	} else if conv != nil && conv.Assigned() {
		return
	}

	result := s.responder.GenerateResponse(ctx, sess.history, sess.Info())

	sess.setInfo(result.Info)
	sess.history = append(sess.history, chat.Turn{Role: domain.RoleAssistant, Content: result.Reply})
	infoComplete := result.Info.Complete()

	// Durability of the AI turn is best-effort: the visitor still gets the
	// in-memory result if any of these writes fail.
	if _, err := s.store.AddMessage(ctx, conversationID, domain.RoleAssistant, result.Reply); err != nil {
		s.log.Error().Err(err).Str("conversation", conversationID).Msg("failed to persist assistant message")
	}
	info := result.Info
	needsHuman := result.NeedsHuman
	if _, err := s.store.UpdateConversation(ctx, conversationID, store.ConversationUpdate{
		CollectedInfo: &info,
		NeedsHuman:    &needsHuman,
	}); err != nil {
		s.log.Error().Err(err).Str("conversation", conversationID).Msg("failed to update conversation")
	}
	if result.NeedsHuman {
		if _, err := s.store.EscalateConversation(ctx, conversationID); err != nil {
			s.log.Error().Err(err).Str("conversation", conversationID).Msg("failed to escalate conversation")
		}
	}
	if infoComplete {
		waiting := domain.StatusWaiting
		if _, err := s.store.UpdateConversation(ctx, conversationID, store.ConversationUpdate{
			Status: &waiting,
		}); err != nil {
			s.log.Error().Err(err).Str("conversation", conversationID).Msg("failed to mark conversation waiting")
		}
	}

	sess.Send(ResponseFrame{
		Type:           FrameTypeResponse,
		Content:        result.Reply,
		ConversationID: conversationID,
		CollectedInfo:  result.Info,
		NeedsHuman:     result.NeedsHuman,
		InfoComplete:   infoComplete,
	})
}
