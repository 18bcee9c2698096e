package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/creastat/chatguard"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	subject       TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	role        TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
	content     TEXT NOT NULL,
	metadata    TEXT,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
`

const selectRecord = `
SELECT s.session_id, s.subject, s.created_at, s.last_activity,
       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id)
FROM sessions s`

// sqliteStore implements Store on an embedded SQLite database.
type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                 Record
		created, lastActive int64
	)
	if err := row.Scan(&rec.ID, &rec.Subject, &created, &lastActive, &rec.MessageCount); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.LastActivity = time.Unix(0, lastActive)
	return &rec, nil
}

// UpsertSession implements Store.
func (s *sqliteStore) UpsertSession(ctx context.Context, id, subject string) (*Record, error) {
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, subject, created_at, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id)
		DO UPDATE SET last_activity = MAX(sessions.last_activity, excluded.last_activity)`,
		id, subject, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession implements Store.
func (s *sqliteStore) GetSession(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord+" WHERE s.session_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// ListSessions implements Store.
func (s *sqliteStore) ListSessions(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectRecord+" ORDER BY s.last_activity DESC, s.session_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteSession implements Store.
func (s *sqliteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountSessions implements Store.
func (s *sqliteStore) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// AddMessage implements Store.
func (s *sqliteStore) AddMessage(ctx context.Context, id string, msg chatguard.Message) error {
	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		v, err := marshalJSON(msg.Metadata)
		if err != nil {
			return err
		}
		metadata = sql.NullString{String: v, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET last_activity = MAX(last_activity, ?) WHERE session_id = ?",
		now.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", chatguard.ErrNotFound, id)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, metadata, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(msg.Role), msg.Content, metadata, msg.TokenCount, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return tx.Commit()
}

// ListMessages implements Store.
func (s *sqliteStore) ListMessages(ctx context.Context, id string, limit int) ([]chatguard.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, metadata, token_count, created_at FROM (
			SELECT id, role, content, metadata, token_count, created_at
			FROM messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []chatguard.Message{}
	for rows.Next() {
		var (
			msg      chatguard.Message
			role     string
			metadata sql.NullString
			created  int64
		)
		if err := rows.Scan(&role, &msg.Content, &metadata, &msg.TokenCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = chatguard.Role(role)
		msg.CreatedAt = time.Unix(0, created)
		if metadata.Valid {
			if err := unmarshalJSON([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountMessages implements Store.
func (s *sqliteStore) CountMessages(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE session_id = ?", id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// TrimMessages implements Store.
func (s *sqliteStore) TrimMessages(ctx context.Context, id string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		firstID   int64
		firstRole string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, role FROM messages WHERE session_id = ? ORDER BY id LIMIT 1", id).
		Scan(&firstID, &firstRole)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read first message: %w", err)
	}

	var res sql.Result
	if chatguard.Role(firstRole) == chatguard.RoleSystem {
		res, err = tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE session_id = ? AND id <> ?
			  AND id NOT IN (
				SELECT id FROM messages
				WHERE session_id = ? AND id <> ?
				ORDER BY id DESC
				LIMIT ?
			  )`, id, firstID, id, firstID, keep-1)
	} else {
		res, err = tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE session_id = ?
			  AND id NOT IN (
				SELECT id FROM messages
				WHERE session_id = ?
				ORDER BY id DESC
				LIMIT ?
			  )`, id, id, keep)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to trim messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trim: %w", err)
	}
	return int(n), nil
}

// DeleteInactiveSessions implements Store.
func (s *sqliteStore) DeleteInactiveSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteMessagesBefore implements Store.
func (s *sqliteStore) DeleteMessagesBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old messages: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close implements Store.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*sqliteStore)(nil)
