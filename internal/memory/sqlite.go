package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sanjeevni-ai/sanjeevni/internal/database"
)

// SQLiteStore is a SQLite-backed Store. Writes for one conversation are
// serialized; different conversations proceed independently.
type SQLiteStore struct {
	db     *sql.DB
	locks  KeyedMutex
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteStore opens the store at dbPath using driver ("sqlite3" or
// "sqlite") and applies the schema.
func NewSQLiteStore(driver, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.Open(driver, dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now, logger: logger.With("component", "memory")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		last_activity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(last_activity);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		tool_calls TEXT,
		tool_results TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context) (*Conversation, error) {
	now := s.now()
	conv := &Conversation{ID: uuid.NewString(), CreatedAt: now, LastActivity: now}
	ts := database.FormatTime(now)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, last_activity) VALUES (?, ?, ?)
	`, conv.ID, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("conversation created", "conversation", conv.ID)
	return conv, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, conversationID string, msg Message) error {
	now := s.now()
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	toolCalls, err := encodeJSON(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	toolResults, err := encodeJSON(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("encode tool results: %w", err)
	}

	unlock, err := s.locks.Lock(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := database.FormatTime(now)
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, created_at, last_activity) VALUES (?, ?, ?)
	`, conversationID, ts, ts); err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, tool_calls, tool_results)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, conversationID, msg.Role, msg.Content, database.FormatTime(msg.Timestamp), toolCalls, toolResults); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_activity = ? WHERE id = ?
	`, ts, conversationID); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	return tx.Commit()
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return n > 0, nil
}

// Messages implements Store.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, tool_calls, tool_results
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			m                      Message
			ts                     string
			toolCalls, toolResults sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &ts, &toolCalls, &toolResults); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = database.ParseTime(ts)
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				s.logger.Warn("unreadable tool calls", "message", m.ID, "error", err)
			}
		}
		if toolResults.Valid {
			if err := json.Unmarshal([]byte(toolResults.String), &m.ToolResults); err != nil {
				s.logger.Warn("unreadable tool results", "message", m.ID, "error", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.created_at, c.last_activity, COUNT(m.seq)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.id = ?
		GROUP BY c.id
	`, conversationID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	unlock, err := s.locks.Lock(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return n > 0, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, c.last_activity, COUNT(m.seq)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByActivity(convs)
	return convs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var (
		c                     Conversation
		createdAt, lastActive string
	)
	if err := row.Scan(&c.ID, &createdAt, &lastActive, &c.MessageCount); err != nil {
		return nil, err
	}
	c.CreatedAt = database.ParseTime(createdAt)
	c.LastActivity = database.ParseTime(lastActive)
	return &c, nil
}

// encodeJSON returns nil for empty slices so the column stays NULL.
func encodeJSON[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
