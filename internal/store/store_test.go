package store

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/logging"
)

func testSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	log := logging.New(io.Discard, "silent", "json")
	s, err := OpenSQLite(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachBackend runs fn once per ConversationStore implementation so the
// interface contract is checked uniformly.
func forEachBackend(t *testing.T, fn func(t *testing.T, s ConversationStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, testSQLite(t))
	})
}

// --- Migration tests ---

func TestSQLiteMigrationsApplied(t *testing.T) {
	s := testSQLite(t)

	var count int
	err := s.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(sqliteMigrations), count)
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	s := testSQLite(t)

	// Running migrate again should be a no-op
	require.NoError(t, s.migrate())

	var count int
	err := s.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(sqliteMigrations), count)
}

func TestSQLiteTablesExist(t *testing.T) {
	s := testSQLite(t)

	for _, table := range []string{"conversations", "messages"} {
		var name string
		err := s.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- Conversation tests ---

func TestCreateConversationDefaults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{
			VisitorIP:        "203.0.113.9",
			VisitorUserAgent: "Mozilla/5.0",
		})
		require.NoError(t, err)
		require.NotNil(t, conv)

		assert.NotEmpty(t, conv.ID)
		assert.Equal(t, domain.StatusActive, conv.Status)
		assert.Equal(t, domain.CollectedInfo{}, conv.CollectedInfo)
		assert.False(t, conv.NeedsHuman)
		assert.Empty(t, conv.AssignedToID)
		assert.Zero(t, conv.MessageCount)
		assert.Nil(t, conv.ClosedAt)

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "203.0.113.9", got.VisitorIP)
		assert.Equal(t, "Mozilla/5.0", got.VisitorUserAgent)
	})
}

func TestGetConversationNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		conv, err := s.GetConversation(context.Background(), "no-such-id")
		require.NoError(t, err)
		assert.Nil(t, conv)
	})
}

func TestListConversationsOrderAndFilter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		var ids []string
		for i := 0; i < 3; i++ {
			conv, err := s.CreateConversation(ctx, CreateConversationParams{})
			require.NoError(t, err)
			ids = append(ids, conv.ID)
		}
		_, err := s.CloseConversation(ctx, ids[1])
		require.NoError(t, err)

		// Newest first
		all, err := s.ListConversations(ctx, ListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, ids[2], all[0].ID)
		assert.Equal(t, ids[1], all[1].ID)
		assert.Equal(t, ids[0], all[2].ID)

		closed, err := s.ListConversations(ctx, ListOptions{Status: domain.StatusClosed})
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, ids[1], closed[0].ID)

		paged, err := s.ListConversations(ctx, ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, ids[1], paged[0].ID)
	})
}

func TestUpdateConversationPartial(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{})
		require.NoError(t, err)

		info := domain.CollectedInfo{Name: "Ana", Email: "ana@example.com"}
		needsHuman := true
		updated, err := s.UpdateConversation(ctx, conv.ID, ConversationUpdate{
			CollectedInfo: &info,
			NeedsHuman:    &needsHuman,
		})
		require.NoError(t, err)
		require.NotNil(t, updated)

		assert.Equal(t, info, updated.CollectedInfo)
		assert.True(t, updated.NeedsHuman)
		// Untouched fields keep their values
		assert.Equal(t, domain.StatusActive, updated.Status)
		assert.Empty(t, updated.AssignedToID)

		agent := "agent-7"
		updated, err = s.UpdateConversation(ctx, conv.ID, ConversationUpdate{
			AssignedToID: &agent,
		})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, "agent-7", updated.AssignedToID)
		assert.Equal(t, info, updated.CollectedInfo)
	})
}

func TestUpdateConversationNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		needsHuman := true
		conv, err := s.UpdateConversation(context.Background(), "no-such-id", ConversationUpdate{
			NeedsHuman: &needsHuman,
		})
		require.NoError(t, err)
		assert.Nil(t, conv)
	})
}

func TestCloseConversation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{})
		require.NoError(t, err)

		closed, err := s.CloseConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, closed)
		assert.Equal(t, domain.StatusClosed, closed.Status)
		require.NotNil(t, closed.ClosedAt)

		// Double close is a safe re-stamp, not an error
		again, err := s.CloseConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, domain.StatusClosed, again.Status)
		require.NotNil(t, again.ClosedAt)
	})
}

func TestEscalateConversation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{})
		require.NoError(t, err)

		escalated, err := s.EscalateConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, escalated)
		assert.Equal(t, domain.StatusEscalated, escalated.Status)
		assert.True(t, escalated.NeedsHuman)
	})
}

// --- Message tests ---

func TestAddMessageBumpsCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{})
		require.NoError(t, err)

		msg, err := s.AddMessage(ctx, conv.ID, domain.RoleUser, "hola")
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, conv.ID, msg.ConversationID)
		assert.Equal(t, domain.RoleUser, msg.Role)
		assert.Equal(t, "hola", msg.Content)

		_, err = s.AddMessage(ctx, conv.ID, domain.RoleAssistant, "¡Hola! ¿En qué puedo ayudarte?")
		require.NoError(t, err)

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.MessageCount)
	})
}

func TestAddMessageConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{})
		require.NoError(t, err)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AddMessage(ctx, conv.ID, domain.RoleUser, "mensaje")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.MessageCount)

		msgs, err := s.GetMessages(ctx, conv.ID, MessageOptions{})
		require.NoError(t, err)
		assert.Len(t, msgs, n)
	})
}

func TestGetMessagesAscending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, CreateConversationParams{})
		require.NoError(t, err)

		contents := []string{"primero", "segundo", "tercero"}
		for _, c := range contents {
			_, err := s.AddMessage(ctx, conv.ID, domain.RoleUser, c)
			require.NoError(t, err)
		}

		msgs, err := s.GetMessages(ctx, conv.ID, MessageOptions{})
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, c := range contents {
			assert.Equal(t, c, msgs[i].Content)
		}
		assert.False(t, msgs[0].CreatedAt.After(msgs[2].CreatedAt))

		paged, err := s.GetMessages(ctx, conv.ID, MessageOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, "segundo", paged[0].Content)
	})
}

func TestGetMessagesEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		msgs, err := s.GetMessages(context.Background(), "no-such-id", MessageOptions{})
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

// --- Stats tests ---

func TestConversationStats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ConversationStore) {
		ctx := context.Background()

		stats, err := s.ConversationStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, &domain.ConversationStats{}, stats)

		var ids []string
		for i := 0; i < 4; i++ {
			conv, err := s.CreateConversation(ctx, CreateConversationParams{})
			require.NoError(t, err)
			ids = append(ids, conv.ID)
		}
		_, err = s.CloseConversation(ctx, ids[0])
		require.NoError(t, err)
		_, err = s.EscalateConversation(ctx, ids[1])
		require.NoError(t, err)

		waiting := domain.StatusWaiting
		_, err = s.UpdateConversation(ctx, ids[2], ConversationUpdate{Status: &waiting})
		require.NoError(t, err)

		stats, err = s.ConversationStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, &domain.ConversationStats{
			Total:     4,
			Active:    1,
			Waiting:   1,
			Escalated: 1,
			Closed:    1,
		}, stats)
	})
}

func TestClosedAtRoundTrip(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)

	closed, err := s.CloseConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	assert.WithinDuration(t, time.Now().UTC(), *closed.ClosedAt, 5*time.Second)
}
