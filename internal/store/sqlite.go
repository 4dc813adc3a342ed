package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/chat"
)

// SQLite persists messages, audio included, in a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ chat.Store = (*SQLite)(nil)

// NewSQLite opens or creates the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread TEXT NOT NULL,
		ref TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		audio BLOB,
		transcript TEXT,
		translation TEXT,
		post_id TEXT,
		sent_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread_sent ON messages(thread, sent_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts or replaces m.
func (s *SQLite) Save(ctx context.Context, m *chat.Message) error {
	query := `
	INSERT INTO messages (id, thread, ref, duration_seconds, mime_type, size, audio, transcript, translation, post_id, sent_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		transcript = excluded.transcript,
		translation = excluded.translation,
		post_id = excluded.post_id`

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Thread, string(m.Ref), m.DurationSeconds, m.MIMEType, m.Size,
		m.Audio, nullString(m.Transcript), nullString(m.Translation), nullString(m.PostID),
		m.SentAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

const selectMessage = `
	SELECT id, thread, ref, duration_seconds, mime_type, size, audio,
	       transcript, translation, post_id, sent_at
	FROM messages`

// Get returns the message with id.
func (s *SQLite) Get(ctx context.Context, id string) (*chat.Message, error) {
	row := s.db.QueryRowContext(ctx, selectMessage+` WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// List returns the newest limit messages of thread, oldest first.
func (s *SQLite) List(ctx context.Context, thread string, limit int) ([]*chat.Message, error) {
	query := `SELECT * FROM (` + selectMessage + ` WHERE thread = ? ORDER BY sent_at DESC, id DESC`
	args := []any{thread}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY sent_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*chat.Message, error) {
	var m chat.Message
	var ref string
	var transcript, translation, postID sql.NullString
	var sentAt int64
	err := row.Scan(
		&m.ID, &m.Thread, &ref, &m.DurationSeconds, &m.MIMEType, &m.Size, &m.Audio,
		&transcript, &translation, &postID, &sentAt,
	)
	if err != nil {
		return nil, err
	}
	m.Ref = blob.Ref(ref)
	m.Transcript = transcript.String
	m.Translation = translation.String
	m.PostID = postID.String
	m.SentAt = time.UnixMilli(sentAt)
	return &m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
