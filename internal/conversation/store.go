package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"hookchat/internal/domain"
)

// Store persists the transcript in SQLite so it survives restarts.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		role       TEXT NOT NULL,
		content    TEXT,
		is_error   INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_time ON messages(created_at);

	CREATE TABLE IF NOT EXISTS attachments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		mime_type  TEXT,
		size_bytes INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_msg ON attachments(message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append persists one message and its attachment descriptors.
func (s *Store) Append(ctx context.Context, msg domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	isError := 0
	if msg.IsError {
		isError = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, role, content, is_error, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Role), msg.Content, isError, msg.Timestamp,
	); err != nil {
		return err
	}

	for _, a := range msg.Attachments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments (message_id, name, mime_type, size_bytes) VALUES (?, ?, ?, ?)`,
			msg.ID, a.Name, a.MimeType, a.SizeBytes,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// History returns the last limit messages in chronological order, with
// their attachment descriptors.
func (s *Store) History(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, is_error, created_at
		 FROM messages ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		var isError int
		if err := rows.Scan(&m.ID, &role, &m.Content, &isError, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.IsError = isError != 0
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	for i := range msgs {
		attachments, err := s.attachments(ctx, msgs[i].ID)
		if err != nil {
			return nil, err
		}
		msgs[i].Attachments = attachments
	}
	return msgs, nil
}

func (s *Store) attachments(ctx context.Context, messageID string) ([]domain.AttachmentMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, mime_type, size_bytes FROM attachments WHERE message_id = ? ORDER BY id`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AttachmentMeta
	for rows.Next() {
		var a domain.AttachmentMeta
		if err := rows.Scan(&a.Name, &a.MimeType, &a.SizeBytes); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
