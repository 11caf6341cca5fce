package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// BubbleRecord represents a transcript bubble in the database. The bubble ID
// is assigned by the reconciler and is unique within a session.
type BubbleRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"` // "mic" or "system"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsDraft   bool      `json:"is_draft"`
}

// TranscriptStorage handles storage of transcript bubbles
type TranscriptStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTranscriptStorage creates a new SQLite transcript storage
func NewTranscriptStorage(db *sql.DB, log *logger.Logger) *TranscriptStorage {
	storage := &TranscriptStorage{
		db:     db,
		logger: log.Named("sqlite-transcript"),
	}

	// Initialize database
	if err := storage.initDB(); err != nil {
		storage.logger.Error("Failed to initialize transcript storage", Error(err))
	}

	return storage
}

// initDB initializes the database tables
func (s *TranscriptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bubbles (
			session_id TEXT NOT NULL,
			bubble_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			is_draft BOOLEAN NOT NULL,
			PRIMARY KEY (session_id, bubble_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bubbles table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_bubbles_session_id ON bubbles(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create session_id index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_bubbles_created_at ON bubbles(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// UpsertBubble inserts a bubble or replaces it when the reconciler has
// updated its text or draft state.
func (s *TranscriptStorage) UpsertBubble(record *BubbleRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO bubbles (session_id, bubble_id, source, content, created_at, is_draft)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, bubble_id) DO UPDATE SET
			content = excluded.content,
			created_at = excluded.created_at,
			is_draft = excluded.is_draft`,
		record.SessionID,
		record.ID,
		record.Source,
		record.Text,
		record.Timestamp.Format(time.RFC3339),
		record.IsDraft,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bubble: %w", err)
	}

	return nil
}

// DeleteBubble removes a bubble the suppression policy retracted
func (s *TranscriptStorage) DeleteBubble(sessionID string, bubbleID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM bubbles WHERE session_id = ? AND bubble_id = ?`,
		sessionID, bubbleID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete bubble: %w", err)
	}

	return nil
}

// GetBubblesBySession returns a session's bubbles in insertion order
func (s *TranscriptStorage) GetBubblesBySession(sessionID string, limit, offset int) ([]*BubbleRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, bubble_id, source, content, created_at, is_draft
		FROM bubbles
		WHERE session_id = ?
		ORDER BY bubble_id ASC
		LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bubbles: %w", err)
	}
	defer rows.Close()

	var records []*BubbleRecord
	for rows.Next() {
		var record BubbleRecord
		var createdAt string

		if err := rows.Scan(
			&record.SessionID,
			&record.ID,
			&record.Source,
			&record.Text,
			&createdAt,
			&record.IsDraft,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bubble: %w", err)
		}

		record.Timestamp, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// GetRecentFinalBubbles returns the newest finalized bubbles for a session,
// oldest first, for assistant context.
func (s *TranscriptStorage) GetRecentFinalBubbles(sessionID string, limit int) ([]*BubbleRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, bubble_id, source, content, created_at, is_draft FROM (
			SELECT session_id, bubble_id, source, content, created_at, is_draft
			FROM bubbles
			WHERE session_id = ? AND is_draft = 0
			ORDER BY bubble_id DESC
			LIMIT ?
		) ORDER BY bubble_id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent bubbles: %w", err)
	}
	defer rows.Close()

	var records []*BubbleRecord
	for rows.Next() {
		var record BubbleRecord
		var createdAt string

		if err := rows.Scan(
			&record.SessionID,
			&record.ID,
			&record.Source,
			&record.Text,
			&createdAt,
			&record.IsDraft,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bubble: %w", err)
		}

		record.Timestamp, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// CountBySession returns the number of bubbles stored for a session
func (s *TranscriptStorage) CountBySession(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM bubbles WHERE session_id = ?`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bubbles: %w", err)
	}

	return count, nil
}
