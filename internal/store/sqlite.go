package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/logging"
)

// SQLiteStore implements ConversationStore on a local SQLite database.
// Intended for single-box deployments and development.
type SQLiteStore struct {
	sql *sql.DB
	log *logging.Logger
}

// OpenSQLite opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func OpenSQLite(path string, log *logging.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// A :memory: database exists per connection; keep the pool at one so
	// every query sees the same database.
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Foreign keys on
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{sql: sqlDB, log: log.Sub("store")}

	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Str("path", path).Msg("database opened")
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing database")
	return s.sql.Close()
}

// migrate runs all pending migrations.
func (s *SQLiteStore) migrate() error {
	if _, err := s.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := s.sql.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version,
		).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := s.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// CreateConversation inserts a new active conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, params CreateConversationParams) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:               uuid.New().String(),
		Status:           domain.StatusActive,
		VisitorIP:        params.VisitorIP,
		VisitorUserAgent: params.VisitorUserAgent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := s.sql.ExecContext(ctx,
		`INSERT INTO conversations (id, status, collected_info, needs_human, visitor_ip, visitor_user_agent, message_count, created_at, updated_at)
		 VALUES (?, ?, '{}', 0, ?, ?, 0, ?, ?)`,
		conv.ID, conv.Status,
		nullString(params.VisitorIP), nullString(params.VisitorUserAgent),
		now.Format(time.DateTime), now.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns a conversation by id, or nil if not found.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT id, status, collected_info, needs_human, assigned_to_id, visitor_ip, visitor_user_agent, message_count, created_at, updated_at, closed_at
		 FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered by createdAt descending.
func (s *SQLiteStore) ListConversations(ctx context.Context, opts ListOptions) ([]domain.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, status, collected_info, needs_human, assigned_to_id, visitor_ip, visitor_user_agent, message_count, created_at, updated_at, closed_at
	          FROM conversations`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// UpdateConversation merges the given fields into the row and bumps
// updatedAt. Returns nil if the conversation does not exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*domain.Conversation, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.DateTime)}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.CollectedInfo != nil {
		data, err := json.Marshal(upd.CollectedInfo)
		if err != nil {
			return nil, fmt.Errorf("encoding collected info: %w", err)
		}
		sets = append(sets, "collected_info = ?")
		args = append(args, string(data))
	}
	if upd.NeedsHuman != nil {
		sets = append(sets, "needs_human = ?")
		args = append(args, *upd.NeedsHuman)
	}
	if upd.AssignedToID != nil {
		sets = append(sets, "assigned_to_id = ?")
		args = append(args, nullString(*upd.AssignedToID))
	}
	if upd.ClosedAt != nil {
		sets = append(sets, "closed_at = ?")
		args = append(args, upd.ClosedAt.UTC().Format(time.DateTime))
	}
	args = append(args, id)

	res, err := s.sql.ExecContext(ctx,
		`UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetConversation(ctx, id)
}

// CloseConversation sets status=closed and stamps closedAt.
func (s *SQLiteStore) CloseConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return closeConversation(ctx, s, id)
}

// EscalateConversation sets status=escalated and needsHuman=true.
func (s *SQLiteStore) EscalateConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return escalateConversation(ctx, s, id)
}

// AddMessage inserts a message and bumps the conversation's message count
// in a single transaction.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, role domain.Role, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, conversationID, role, content, now.Format(time.DateTime),
	); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = message_count + 1, updated_at = ? WHERE id = ?`,
		now.Format(time.DateTime), conversationID,
	); err != nil {
		return nil, fmt.Errorf("bumping message count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}
	return msg, nil
}

// GetMessages returns messages ordered by createdAt ascending.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, opts MessageOptions) ([]domain.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at, rowid LIMIT ? OFFSET ?`,
		conversationID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		msg.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// ConversationStats counts conversations per status in one pass.
func (s *SQLiteStore) ConversationStats(ctx context.Context) (*domain.ConversationStats, error) {
	var stats domain.ConversationStats
	err := s.sql.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'waiting' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'escalated' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0)
		FROM conversations
	`).Scan(&stats.Total, &stats.Active, &stats.Waiting, &stats.Escalated, &stats.Closed)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}
	return &stats, nil
}

// scanConversation reads one conversation row via the given scan function.
func scanConversation(scan func(dest ...any) error) (*domain.Conversation, error) {
	var conv domain.Conversation
	var infoJSON, createdAt, updatedAt string
	var assignedTo, visitorIP, visitorUA, closedAt sql.NullString

	if err := scan(
		&conv.ID, &conv.Status, &infoJSON, &conv.NeedsHuman,
		&assignedTo, &visitorIP, &visitorUA, &conv.MessageCount,
		&createdAt, &updatedAt, &closedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(infoJSON), &conv.CollectedInfo); err != nil {
		return nil, fmt.Errorf("decoding collected info: %w", err)
	}
	conv.AssignedToID = assignedTo.String
	conv.VisitorIP = visitorIP.String
	conv.VisitorUserAgent = visitorUA.String
	conv.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	conv.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	if closedAt.Valid {
		t, _ := time.Parse(time.DateTime, closedAt.String)
		conv.ClosedAt = &t
	}
	return &conv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// closeConversation and escalateConversation express the two status
// transitions as partial updates so every backend shares one definition.
func closeConversation(ctx context.Context, s ConversationStore, id string) (*domain.Conversation, error) {
	status := domain.StatusClosed
	now := time.Now().UTC()
	return s.UpdateConversation(ctx, id, ConversationUpdate{Status: &status, ClosedAt: &now})
}

func escalateConversation(ctx context.Context, s ConversationStore, id string) (*domain.Conversation, error) {
	status := domain.StatusEscalated
	needsHuman := true
	return s.UpdateConversation(ctx, id, ConversationUpdate{Status: &status, NeedsHuman: &needsHuman})
}
