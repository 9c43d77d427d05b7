package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/logging"
)

// PostgresStore implements ConversationStore on a pgx connection pool.
// This is the production backend.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	DSN string

	// With PgBouncer in front, these can be relatively low per replica.
	MaxConns int32
	MinConns int32
}

// OpenPostgres connects to Postgres, pings it, and runs migrations.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, log *logging.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool, log: log.Sub("store")}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Msg("database connected")
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.log.Info().Msg("closing database pool")
	s.pool.Close()
	return nil
}

// migrate runs all pending migrations.
func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range postgresMigrations {
		var count int
		if err := s.pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = $1", m.Version,
		).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		if err := s.withTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version) VALUES ($1)", m.Version,
			); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.Version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

// withTx executes fn within a transaction. Rollback on defer is a no-op if
// the transaction was already committed.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateConversation inserts a new active conversation.
func (s *PostgresStore) CreateConversation(ctx context.Context, params CreateConversationParams) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:               uuid.New().String(),
		Status:           domain.StatusActive,
		VisitorIP:        params.VisitorIP,
		VisitorUserAgent: params.VisitorUserAgent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, status, visitor_ip, visitor_user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, string(conv.Status),
		textOrNil(params.VisitorIP), textOrNil(params.VisitorUserAgent),
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

const conversationColumns = `id, status, collected_info, needs_human, assigned_to_id,
	visitor_ip, visitor_user_agent, message_count, created_at, updated_at, closed_at`

// GetConversation returns a conversation by id, or nil if not found.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)

	conv, err := scanPgConversation(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered by createdAt descending.
func (s *PostgresStore) ListConversations(ctx context.Context, opts ListOptions) ([]domain.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, string(opts.Status), limit, opts.Offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanPgConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// UpdateConversation merges the given fields into the row and bumps
// updatedAt. Returns nil if the conversation does not exist.
func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*domain.Conversation, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.Status != nil {
		sets = append(sets, "status = "+arg(string(*upd.Status))+"::conversation_status")
	}
	if upd.CollectedInfo != nil {
		sets = append(sets, "collected_info = "+arg(*upd.CollectedInfo))
	}
	if upd.NeedsHuman != nil {
		sets = append(sets, "needs_human = "+arg(*upd.NeedsHuman))
	}
	if upd.AssignedToID != nil {
		sets = append(sets, "assigned_to_id = "+arg(textOrNil(*upd.AssignedToID)))
	}
	if upd.ClosedAt != nil {
		sets = append(sets, "closed_at = "+arg(upd.ClosedAt.UTC()))
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE conversations SET `+strings.Join(sets, ", ")+
			` WHERE id = $1 RETURNING `+conversationColumns,
		args...)

	conv, err := scanPgConversation(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return conv, nil
}

// CloseConversation sets status=closed and stamps closedAt.
func (s *PostgresStore) CloseConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return closeConversation(ctx, s, id)
}

// EscalateConversation sets status=escalated and needsHuman=true.
func (s *PostgresStore) EscalateConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return escalateConversation(ctx, s, id)
}

// AddMessage inserts a message and bumps the conversation's message count
// in a single transaction.
func (s *PostgresStore) AddMessage(ctx context.Context, conversationID string, role domain.Role, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, conversationID, string(role), content, now,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE conversations SET message_count = message_count + 1, updated_at = now() WHERE id = $1`,
			conversationID,
		); err != nil {
			return fmt.Errorf("bumping message count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns messages ordered by createdAt ascending.
func (s *PostgresStore) GetMessages(ctx context.Context, conversationID string, opts MessageOptions) ([]domain.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at LIMIT $2 OFFSET $3`,
		conversationID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		msg.Role = domain.Role(role)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// ConversationStats counts conversations per status in one pass.
func (s *PostgresStore) ConversationStats(ctx context.Context) (*domain.ConversationStats, error) {
	var stats domain.ConversationStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE status = 'waiting'),
		       COUNT(*) FILTER (WHERE status = 'escalated'),
		       COUNT(*) FILTER (WHERE status = 'closed')
		FROM conversations
	`).Scan(&stats.Total, &stats.Active, &stats.Waiting, &stats.Escalated, &stats.Closed)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}
	return &stats, nil
}

// scanPgConversation reads one conversation row via the given scan function.
func scanPgConversation(scan func(dest ...any) error) (*domain.Conversation, error) {
	var conv domain.Conversation
	var status string
	var assignedTo, visitorIP, visitorUA *string
	var closedAt *time.Time

	if err := scan(
		&conv.ID, &status, &conv.CollectedInfo, &conv.NeedsHuman,
		&assignedTo, &visitorIP, &visitorUA, &conv.MessageCount,
		&conv.CreatedAt, &conv.UpdatedAt, &closedAt,
	); err != nil {
		return nil, err
	}

	conv.Status = domain.Status(status)
	if assignedTo != nil {
		conv.AssignedToID = *assignedTo
	}
	if visitorIP != nil {
		conv.VisitorIP = *visitorIP
	}
	if visitorUA != nil {
		conv.VisitorUserAgent = *visitorUA
	}
	conv.ClosedAt = closedAt
	return &conv, nil
}

// textOrNil maps the empty string to SQL NULL.
func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
