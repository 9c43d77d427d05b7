package gateway

// PushToConversation delivers an agent message to the visitor's live socket,
// if one exists. The synthesized frame always signals human control
// (needsHuman=true, infoComplete=false) so the widget switches modes.
// Nothing is persisted here; the REST surface persists the message before
// calling this. Returns whether a live socket was found.
func (s *Server) PushToConversation(conversationID, content string) bool {
	sess := s.sessions.FindByConversation(conversationID)
	if sess == nil {
		return false
	}

	err := sess.Send(ResponseFrame{
		Type:           FrameTypeResponse,
		Content:        content,
		ConversationID: conversationID,
		CollectedInfo:  sess.Info(),
		NeedsHuman:     true,
		InfoComplete:   false,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", conversationID).Msg("bridge push failed")
	}
	return true
}
