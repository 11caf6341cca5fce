package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// Assistant note kinds
const (
	NoteKindSummary = "summary"
	NoteKindAnswer  = "answer"
)

// AssistantNoteRecord represents an assistant output stored for a session:
// a periodic summary or a suggested answer to a detected question.
type AssistantNoteRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Question  string    `json:"question,omitempty"` // Set for kind "answer"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AssistantStorage handles storage of assistant notes
type AssistantStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAssistantStorage creates a new SQLite assistant storage
func NewAssistantStorage(db *sql.DB, log *logger.Logger) *AssistantStorage {
	storage := &AssistantStorage{
		db:     db,
		logger: log.Named("sqlite-assistant"),
	}

	// Initialize database
	if err := storage.initDB(); err != nil {
		storage.logger.Error("Failed to initialize assistant storage", Error(err))
	}

	return storage
}

// initDB initializes the database tables
func (s *AssistantStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS assistant_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			question TEXT,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create assistant_notes table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_notes_session_id ON assistant_notes(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create session_id index: %w", err)
	}

	return nil
}

// StoreNote stores an assistant note
func (s *AssistantStorage) StoreNote(record *AssistantNoteRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO assistant_notes (session_id, kind, question, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.SessionID,
		record.Kind,
		record.Question,
		record.Content,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert assistant note: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// GetNotesBySession returns a session's assistant notes, newest first
func (s *AssistantStorage) GetNotesBySession(sessionID string, limit, offset int) ([]*AssistantNoteRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, question, content, created_at
		FROM assistant_notes
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assistant notes: %w", err)
	}
	defer rows.Close()

	var records []*AssistantNoteRecord
	for rows.Next() {
		var record AssistantNoteRecord
		var question sql.NullString
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Kind,
			&question,
			&record.Content,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assistant note: %w", err)
		}

		if question.Valid {
			record.Question = question.String
		}

		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}

	return records, nil
}
