package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultConversationTable is the table used when none is configured.
const DefaultConversationTable = "conversation_messages"

// Table names are interpolated into SQL, so they are restricted to
// identifier characters.
var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SQLiteConversationConfig configures the SQLite conversation store.
type SQLiteConversationConfig struct {
	// TableName defaults to DefaultConversationTable.
	TableName string
	ConversationConfig
}

// SQLiteConversation persists conversation history in SQLite. The caller
// owns the *sql.DB unless Close is used.
type SQLiteConversation struct {
	db     *sql.DB
	table  string
	config ConversationConfig
}

// NewSQLiteConversation creates a SQLite-backed conversation store and
// ensures its schema exists.
func NewSQLiteConversation(db *sql.DB, config SQLiteConversationConfig) (*SQLiteConversation, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	table := config.TableName
	if table == "" {
		table = DefaultConversationTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	s := &SQLiteConversation{db: db, table: table, config: config.ConversationConfig}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("creating conversation schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteConversation) ensureSchema() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_session ON %[1]s(session_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_session_created ON %[1]s(session_id, created_at);
	`, s.table))
	return err
}

func (s *SQLiteConversation) AppendMessage(ctx context.Context, sessionID string, msg ConversationMessage) error {
	fillDefaults(&msg, sessionID)

	var toolCallID sql.NullString
	if msg.ToolCallID != "" {
		toolCallID = sql.NullString{String: msg.ToolCallID, Valid: true}
	}
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding message metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, session_id, role, content, tool_call_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.table),
		msg.ID, msg.SessionID, msg.Role, msg.Content, toolCallID, metadata, msg.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	if max := s.config.MaxSessionMessages; max > 0 {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM %[1]s WHERE session_id = ? AND rowid NOT IN (
				SELECT rowid FROM %[1]s WHERE session_id = ?
				ORDER BY created_at DESC, rowid DESC
				LIMIT ?
			)
		`, s.table), sessionID, sessionID, max)
	}
	return err
}

func (s *SQLiteConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	messages, err := s.queryMessages(ctx, fmt.Sprintf(`
		SELECT id, session_id, role, content, tool_call_id, metadata, created_at
		FROM %s WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, s.table), sessionID)
	if err != nil {
		return nil, err
	}

	if s.config.TruncationStrategy != nil && len(messages) > 0 {
		return s.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

func (s *SQLiteConversation) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error) {
	return s.queryMessages(ctx, fmt.Sprintf(`
		SELECT id, session_id, role, content, tool_call_id, metadata, created_at
		FROM (
			SELECT id, session_id, role, content, tool_call_id, metadata, created_at, rowid AS rid
			FROM %s WHERE session_id = ?
			ORDER BY created_at DESC, rid DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, rid ASC
	`, s.table), sessionID, limit)
}

func (s *SQLiteConversation) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, s.table), sessionID)
	return err
}

func (s *SQLiteConversation) DeleteOldMessages(ctx context.Context, sessionID string, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UTC()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE session_id = ? AND created_at < ?`, s.table),
		sessionID, cutoff)
	return err
}

// DeleteOldSessions removes every session whose newest message is older
// than olderThan.
func (s *SQLiteConversation) DeleteOldSessions(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UTC()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s WHERE session_id IN (
			SELECT session_id FROM %[1]s
			GROUP BY session_id
			HAVING MAX(created_at) < ?
		)
	`, s.table), cutoff)
	return err
}

// ListSessions returns the IDs of sessions with at least one message.
func (s *SQLiteConversation) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT session_id FROM %s ORDER BY session_id`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SessionStats summarizes one session's stored history.
type SessionStats struct {
	SessionID    string
	MessageCount int
	FirstMessage time.Time
	LastMessage  time.Time
}

// Stats returns message count and time bounds for a session. A session
// with no messages yields a zero count.
func (s *SQLiteConversation) Stats(ctx context.Context, sessionID string) (SessionStats, error) {
	stats := SessionStats{SessionID: sessionID}

	var first, last sql.NullTime
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM %s WHERE session_id = ?
	`, s.table), sessionID).Scan(&stats.MessageCount, &first, &last)
	if err != nil {
		return SessionStats{}, err
	}
	if first.Valid {
		stats.FirstMessage = first.Time
	}
	if last.Valid {
		stats.LastMessage = last.Time
	}
	return stats, nil
}

// Close closes the underlying database handle.
func (s *SQLiteConversation) Close() error {
	return s.db.Close()
}

func (s *SQLiteConversation) queryMessages(ctx context.Context, query string, args ...any) ([]ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ConversationMessage
	for rows.Next() {
		var (
			msg        ConversationMessage
			toolCallID sql.NullString
			metadata   sql.NullString
			createdAt  sql.NullTime
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolCallID, &metadata, &createdAt); err != nil {
			return nil, err
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decoding message metadata: %w", err)
			}
		}
		if createdAt.Valid {
			msg.CreatedAt = createdAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

var _ ConversationMemory = (*SQLiteConversation)(nil)
