package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/codev612/hearnow/internal/asr"
	"github.com/codev612/hearnow/internal/storage/sqlite"
	"github.com/codev612/hearnow/internal/websocket"
	"github.com/codev612/hearnow/pkg/logger"
)

// Manager owns the active recording session. The desktop app records one
// meeting at a time; StartSession refuses to open a second session while
// one is live.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*RecordingSession

	client            *asr.OpenAIClient
	capture           CaptureOpener
	wsServer          *websocket.Server
	sessionStorage    *sqlite.SessionStorage
	transcriptStorage *sqlite.TranscriptStorage
	assistant         Assistant
	config            Config
	logger            *logger.Logger
}

// NewManager creates a session manager. assistant may be nil when the
// assistant feature is disabled.
func NewManager(
	client *asr.OpenAIClient,
	capture CaptureOpener,
	wsServer *websocket.Server,
	sessionStorage *sqlite.SessionStorage,
	transcriptStorage *sqlite.TranscriptStorage,
	assistant Assistant,
	config Config,
	log *logger.Logger,
) *Manager {
	return &Manager{
		sessions:          make(map[string]*RecordingSession),
		client:            client,
		capture:           capture,
		wsServer:          wsServer,
		sessionStorage:    sessionStorage,
		transcriptStorage: transcriptStorage,
		assistant:         assistant,
		config:            config,
		logger:            log.Named("session-manager"),
	}
}

// StartSession creates a new recording session and brings up its pipelines.
func (m *Manager) StartSession(ctx context.Context, title string) (*sqlite.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) > 0 {
		return nil, fmt.Errorf("a recording session is already active")
	}

	id := newSessionID()
	if title == "" {
		title = "Meeting " + time.Now().Format("Jan 2 15:04")
	}

	record := &sqlite.SessionRecord{
		ID:        id,
		Title:     title,
		StartedAt: time.Now().UTC(),
		Status:    "recording",
	}
	if err := m.sessionStorage.CreateSession(record); err != nil {
		return nil, fmt.Errorf("failed to create session record: %w", err)
	}

	sess := newRecordingSession(ctx, id, m.client, m.capture, m.wsServer,
		m.transcriptStorage, m.assistant, m.config, m.logger)
	if err := sess.start(); err != nil {
		if endErr := m.sessionStorage.EndSession(id, time.Now().UTC()); endErr != nil {
			m.logger.Error("Failed to close aborted session record", Error(endErr))
		}
		return nil, err
	}

	m.sessions[id] = sess
	if m.assistant != nil {
		m.assistant.SetActiveSession(id)
	}

	m.logger.Info("Started recording session", String("session_id", id), String("title", title))
	m.broadcastState(id, "recording")
	return record, nil
}

// StopSession tears down the session with the given ID.
func (m *Manager) StopSession(id string) error {
	m.mu.Lock()
	sess, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("no active session with ID %s", id)
	}

	sess.stop()

	if m.assistant != nil {
		m.assistant.SetActiveSession("")
	}
	if err := m.sessionStorage.EndSession(id, time.Now().UTC()); err != nil {
		m.logger.Error("Failed to mark session ended", String("session_id", id), Error(err))
	}

	m.logger.Info("Stopped recording session", String("session_id", id))
	m.broadcastState(id, "ended")
	return nil
}

// StopAll tears down every active session. Used during shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	active := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		active = append(active, id)
	}
	m.mu.Unlock()

	for _, id := range active {
		if err := m.StopSession(id); err != nil {
			m.logger.Error("Failed to stop session", String("session_id", id), Error(err))
		}
	}
}

// ActiveSessionID returns the ID of the live session, or "" when idle.
func (m *Manager) ActiveSessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id := range m.sessions {
		return id
	}
	return ""
}

func (m *Manager) broadcastState(sessionID, state string) {
	m.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSessionState,
		Data: map[string]any{
			"session_id": sessionID,
			"state":      state,
		},
	})
}

// newSessionID builds a timestamped unique session ID.
func newSessionID() string {
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("sess-%s-%s", time.Now().UTC().Format("20060102-150405"), hex.EncodeToString(suffix))
}
