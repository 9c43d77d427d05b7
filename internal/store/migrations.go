package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// sqliteMigrations is the ordered list of SQLite schema migrations.
// SQLite has no enum type; status and role are checked with constraints.
var sqliteMigrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id                 TEXT PRIMARY KEY,
				status             TEXT NOT NULL DEFAULT 'active'
				                   CHECK (status IN ('active', 'waiting', 'closed', 'escalated')),
				collected_info     TEXT NOT NULL DEFAULT '{}',
				needs_human        INTEGER NOT NULL DEFAULT 0,
				assigned_to_id     TEXT,
				visitor_ip         TEXT,
				visitor_user_agent TEXT,
				message_count      INTEGER NOT NULL DEFAULT 0,
				created_at         TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at         TEXT NOT NULL DEFAULT (datetime('now')),
				closed_at          TEXT
			);

			CREATE INDEX idx_conversations_status ON conversations (status);
			CREATE INDEX idx_conversations_assigned ON conversations (assigned_to_id);
			CREATE INDEX idx_conversations_created ON conversations (created_at);

			CREATE TABLE messages (
				id              TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role            TEXT NOT NULL
				                CHECK (role IN ('user', 'assistant', 'system')),
				content         TEXT NOT NULL,
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, created_at);
		`,
	},
}

// postgresMigrations is the ordered list of Postgres schema migrations.
var postgresMigrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TYPE conversation_status AS ENUM ('active', 'waiting', 'closed', 'escalated');
			CREATE TYPE message_role AS ENUM ('user', 'assistant', 'system');

			CREATE TABLE conversations (
				id                 TEXT PRIMARY KEY,
				status             conversation_status NOT NULL DEFAULT 'active',
				collected_info     JSONB NOT NULL DEFAULT '{}',
				needs_human        BOOLEAN NOT NULL DEFAULT FALSE,
				assigned_to_id     TEXT,
				visitor_ip         TEXT,
				visitor_user_agent TEXT,
				message_count      INTEGER NOT NULL DEFAULT 0,
				created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
				closed_at          TIMESTAMPTZ
			);

			CREATE INDEX idx_conversations_status ON conversations (status);
			CREATE INDEX idx_conversations_assigned ON conversations (assigned_to_id);
			CREATE INDEX idx_conversations_created ON conversations (created_at);

			CREATE TABLE messages (
				id              TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role            message_role NOT NULL,
				content         TEXT NOT NULL,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, created_at);
		`,
	},
}
