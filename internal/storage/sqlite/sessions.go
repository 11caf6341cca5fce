package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// SessionRecord represents a recording session in the database
type SessionRecord struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"` // "recording" or "ended"
}

// SessionStorage handles storage of recording session records
type SessionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSessionStorage creates a new SQLite session storage
func NewSessionStorage(db *sql.DB, log *logger.Logger) *SessionStorage {
	storage := &SessionStorage{
		db:     db,
		logger: log.Named("sqlite-sessions"),
	}

	// Initialize database
	if err := storage.initDB(); err != nil {
		storage.logger.Error("Failed to initialize session storage", Error(err))
	}

	return storage
}

// initDB initializes the database tables
func (s *SessionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			status TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`)
	if err != nil {
		return fmt.Errorf("failed to create started_at index: %w", err)
	}

	return nil
}

// CreateSession stores a new session record
func (s *SessionStorage) CreateSession(record *SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, title, started_at, status) VALUES (?, ?, ?, ?)`,
		record.ID,
		record.Title,
		record.StartedAt.Format(time.RFC3339),
		record.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// EndSession marks a session as ended at the given time
func (s *SessionStorage) EndSession(id string, endedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = 'ended' WHERE id = ?`,
		endedAt.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}

	return nil
}

// GetSession returns a session by ID
func (s *SessionStorage) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, title, started_at, ended_at, status FROM sessions WHERE id = ?`,
		id,
	)

	record, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return record, nil
}

// GetSessions returns sessions in reverse chronological order with pagination
func (s *SessionStorage) GetSessions(limit, offset int) ([]*SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, title, started_at, ended_at, status
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// DeleteSessionsOlderThan removes sessions (and their transcript bubbles and
// assistant notes) that started before the cutoff. Keying on started_at means
// sessions left in status 'recording' after a crash are reclaimed too, since
// their ended_at was never written. Returns the number of sessions removed.
func (s *SessionStorage) DeleteSessionsOlderThan(cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.Format(time.RFC3339)

	// Child rows first; no foreign keys are declared.
	if _, err := s.db.Exec(
		`DELETE FROM bubbles WHERE session_id IN
		(SELECT id FROM sessions WHERE started_at < ?)`,
		cutoffStr,
	); err != nil {
		return 0, fmt.Errorf("failed to delete expired bubbles: %w", err)
	}

	if _, err := s.db.Exec(
		`DELETE FROM assistant_notes WHERE session_id IN
		(SELECT id FROM sessions WHERE started_at < ?)`,
		cutoffStr,
	); err != nil {
		return 0, fmt.Errorf("failed to delete expired assistant notes: %w", err)
	}

	result, err := s.db.Exec(
		`DELETE FROM sessions WHERE started_at < ?`,
		cutoffStr,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return deleted, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRecord, error) {
	var record SessionRecord
	var title sql.NullString
	var startedAt string
	var endedAt sql.NullString

	if err := row.Scan(
		&record.ID,
		&title,
		&startedAt,
		&endedAt,
		&record.Status,
	); err != nil {
		return nil, err
	}

	if title.Valid {
		record.Title = title.String
	}

	var err error
	record.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		record.EndedAt = &t
	}

	return &record, nil
}
