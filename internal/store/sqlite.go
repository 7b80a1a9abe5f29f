package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nebulatel/handoff/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	saveMu sync.Mutex // serializes archive writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		status TEXT NOT NULL DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveArchive writes a finished session and its messages in one transaction.
// A session row is created on first save and keeps its original start time on
// later saves; the message list is always replaced wholesale, so a repeat
// save supersedes any earlier, partial record.
func (s *SQLiteStore) SaveArchive(ctx context.Context, archive domain.Archive) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	start := archive.StartedAt
	if start.IsZero() {
		if len(archive.Messages) > 0 {
			start = archive.Messages[0].Timestamp
		} else {
			start = time.Now()
		}
	}
	end := archive.EndedAt
	if end.IsZero() {
		end = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, client_id, start_time, end_time, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			status = excluded.status`,
		archive.ID, archive.ClientID, start.UnixNano(), end.UnixNano(), archive.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, archive.ID); err != nil {
		return fmt.Errorf("clear session messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, sender, content, timestamp)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range archive.Messages {
		if _, err := stmt.ExecContext(ctx, archive.ID, string(msg.Sender), msg.Content, msg.Timestamp.UnixNano()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// ListArchives returns summaries of archived sessions, newest first.
func (s *SQLiteStore) ListArchives(ctx context.Context) ([]domain.Archive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, start_time, end_time, status
		FROM sessions
		ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var archives []domain.Archive
	for rows.Next() {
		a, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return archives, nil
}

// GetArchive returns one archived session with its ordered messages, or nil
// when the id is unknown.
func (s *SQLiteStore) GetArchive(ctx context.Context, id string) (*domain.Archive, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, start_time, end_time, status
		FROM sessions WHERE id = ?`, id)

	archive, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, content, timestamp
		FROM messages WHERE session_id = ?
		ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sender, content string
		var ts int64
		if err := rows.Scan(&sender, &content, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		archive.Messages = append(archive.Messages, domain.Message{
			Sender:    domain.Sender(sender),
			Content:   content,
			Timestamp: time.Unix(0, ts),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &archive, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Archive, error) {
	var a domain.Archive
	var start int64
	var end sql.NullInt64

	if err := row.Scan(&a.ID, &a.ClientID, &start, &end, &a.Status); err != nil {
		if err == sql.ErrNoRows {
			return domain.Archive{}, err
		}
		return domain.Archive{}, fmt.Errorf("scan session row: %w", err)
	}
	a.StartedAt = time.Unix(0, start)
	if end.Valid {
		a.EndedAt = time.Unix(0, end.Int64)
	}
	return a, nil
}
