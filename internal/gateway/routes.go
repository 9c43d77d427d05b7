package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/store"
)

// registerRoutes sets up the public routes and the staff-guarded API.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/conversations", s.handleListConversations)
	api.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	api.HandleFunc("GET /api/conversations/stats", s.handleStats)
	api.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	api.HandleFunc("PATCH /api/conversations/{id}", s.handleUpdateConversation)
	api.HandleFunc("POST /api/conversations/{id}/close", s.handleCloseConversation)
	api.HandleFunc("POST /api/conversations/{id}/escalate", s.handleEscalateConversation)
	api.HandleFunc("GET /api/conversations/{id}/messages", s.handleGetMessages)
	api.HandleFunc("POST /api/conversations/{id}/messages", s.handleAddMessage)
	mux.Handle("/api/", s.requireStaff(api))

	mux.HandleFunc("/", handleNotFound)
}

// Response envelopes: {"data": ...} on success, {"error": ...} on failure.

func writeData(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": payload})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

// healthPayload is the public health report.
type healthPayload struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime"`
	Connections int     `json:"connections"`
	Timestamp   string  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthPayload{
		Status:      "ok",
		Uptime:      time.Since(s.startedAt).Seconds(),
		Connections: s.sessions.Count(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := store.ListOptions{
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}
	if status := q.Get("status"); status != "" {
		st := domain.Status(status)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status: "+status)
			return
		}
		opts.Status = st
	}

	convs, err := s.store.ListConversations(r.Context(), opts)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list conversations")
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeData(w, http.StatusOK, convs)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.CreateConversation(r.Context(), store.CreateConversationParams{
		VisitorIP:        visitorIP(r),
		VisitorUserAgent: r.UserAgent(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create conversation")
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeData(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get conversation")
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeData(w, http.StatusOK, conv)
}

type updateConversationBody struct {
	Status       *domain.Status `json:"status"`
	AssignedToID *string        `json:"assignedToId"`
	NeedsHuman   *bool          `json:"needsHuman"`
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var body updateConversationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Status != nil && !body.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status: "+string(*body.Status))
		return
	}

	conv, err := s.store.UpdateConversation(r.Context(), r.PathValue("id"), store.ConversationUpdate{
		Status:       body.Status,
		AssignedToID: body.AssignedToID,
		NeedsHuman:   body.NeedsHuman,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to update conversation")
		writeError(w, http.StatusInternalServerError, "failed to update conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeData(w, http.StatusOK, conv)
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.CloseConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to close conversation")
		writeError(w, http.StatusInternalServerError, "failed to close conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeData(w, http.StatusOK, conv)
}

func (s *Server) handleEscalateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.EscalateConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to escalate conversation")
		writeError(w, http.StatusInternalServerError, "failed to escalate conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeData(w, http.StatusOK, conv)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get conversation")
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	q := r.URL.Query()
	msgs, err := s.store.GetMessages(r.Context(), id, store.MessageOptions{
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeData(w, http.StatusOK, msgs)
}

type addMessageBody struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// handleAddMessage persists an agent message. Posting to an unassigned
// conversation assigns it to the posting agent; that side effect is the only
// way human takeover begins. The bridge push afterwards is best-effort — an
// offline visitor sees the message on reconnect.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get conversation")
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	var body addMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "Message content is required")
		return
	}

	user := staffFromContext(r.Context())
	if !conv.Assigned() && user != nil {
		if _, err := s.store.UpdateConversation(r.Context(), id, store.ConversationUpdate{
			AssignedToID: &user.ID,
		}); err != nil {
			s.log.Error().Err(err).Str("conversation", id).Msg("failed to auto-assign conversation")
			writeError(w, http.StatusInternalServerError, "failed to assign conversation")
			return
		}
	}

	role := domain.RoleAssistant
	if body.Role == string(domain.RoleSystem) {
		role = domain.RoleSystem
	}

	msg, err := s.store.AddMessage(r.Context(), id, role, content)
	if err != nil {
		s.log.Error().Err(err).Str("conversation", id).Msg("failed to persist agent message")
		writeError(w, http.StatusInternalServerError, "failed to add message")
		return
	}

	s.PushToConversation(id, content)

	writeData(w, http.StatusCreated, msg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ConversationStats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to compute stats")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeData(w, http.StatusOK, stats)
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
