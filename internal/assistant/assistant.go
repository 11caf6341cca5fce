package assistant

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/codev612/hearnow/internal/storage/sqlite"
	"github.com/codev612/hearnow/internal/websocket"
	"github.com/codev612/hearnow/pkg/logger"
)

// Field helpers
var (
	String = logger.String
	Int    = logger.Int
	Int64  = logger.Int64
	Error  = logger.Error
)

const defaultSystemPrompt = `You are a live meeting assistant. You receive a rolling transcript of an ongoing meeting with two speakers: ME (the local user) and THEM (the remote party). Be concise and factual. Never invent content that is not in the transcript.`

const summaryInstruction = `Summarize the conversation so far in a few short bullet points, then list any open action items or decisions. If nothing meaningful has been said yet, reply with exactly "NOTHING_TO_SUMMARIZE".`

// Config represents configuration for the meeting assistant
type Config struct {
	Enabled          bool
	Model            string
	IntervalSeconds  int
	ContextBubbles   int
	SystemPromptPath string
	TimeoutSeconds   int
}

// Assistant runs the periodic summary loop and answers detected questions
// using the configured chat provider.
type Assistant struct {
	ctx               context.Context
	cancel            context.CancelFunc
	transcriptStorage *sqlite.TranscriptStorage
	assistantStorage  *sqlite.AssistantStorage
	chatProvider      ChatProvider
	wsServer          *websocket.Server
	logger            *logger.Logger
	config            Config
	interval          time.Duration
	systemPrompt      string
	wg                sync.WaitGroup

	mu            sync.RWMutex
	activeSession string
}

// New creates a new meeting assistant
func New(
	ctx context.Context,
	transcriptStorage *sqlite.TranscriptStorage,
	assistantStorage *sqlite.AssistantStorage,
	chatProvider ChatProvider,
	wsServer *websocket.Server,
	config Config,
	log *logger.Logger,
) (*Assistant, error) {
	if chatProvider == nil {
		return nil, fmt.Errorf("chat provider is required for the assistant")
	}

	interval := time.Duration(config.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	aCtx, aCancel := context.WithCancel(ctx)

	a := &Assistant{
		ctx:               aCtx,
		cancel:            aCancel,
		transcriptStorage: transcriptStorage,
		assistantStorage:  assistantStorage,
		chatProvider:      chatProvider,
		wsServer:          wsServer,
		logger:            log.Named("assistant"),
		config:            config,
		interval:          interval,
		systemPrompt:      loadSystemPrompt(config.SystemPromptPath, log),
	}

	return a, nil
}

func loadSystemPrompt(path string, log *logger.Logger) string {
	if path == "" {
		return defaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Failed to read assistant system prompt, using built-in default",
			logger.String("path", path), logger.Error(err))
		return defaultSystemPrompt
	}
	return strings.TrimSpace(string(data))
}

// Start starts the periodic summary loop
func (a *Assistant) Start() error {
	if !a.config.Enabled {
		a.logger.Info("Assistant is disabled, not starting")
		return nil
	}

	a.logger.Info("Starting assistant summary loop",
		Int("interval_seconds", int(a.interval.Seconds())),
		String("model", a.config.Model))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-a.ctx.Done():
				a.logger.Info("Assistant summary loop stopped due to context cancellation")
				return
			case <-ticker.C:
				if err := a.generateSummary(); err != nil {
					a.logger.Error("Error generating summary", Error(err))
				}
			}
		}
	}()
	return nil
}

// Stop stops the summary loop and waits for in-flight work
func (a *Assistant) Stop() error {
	a.logger.Info("Stopping assistant")
	a.cancel()
	a.wg.Wait()
	return nil
}

// SetActiveSession tells the summary loop which session to summarize.
// An empty ID pauses the loop between sessions.
func (a *Assistant) SetActiveSession(sessionID string) {
	a.mu.Lock()
	a.activeSession = sessionID
	a.mu.Unlock()
}

func (a *Assistant) currentSession() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeSession
}

// generateSummary renders the recent transcript for the active session and
// asks the provider for a rolling summary.
func (a *Assistant) generateSummary() error {
	sessionID := a.currentSession()
	if sessionID == "" {
		return nil // No session in progress
	}

	transcript, count, err := a.renderTranscript(sessionID)
	if err != nil {
		return err
	}
	if count == 0 {
		a.logger.Debug("No finalized bubbles yet, skipping summary")
		return nil
	}

	messages := []ChatMessage{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: transcript + "\n\n" + summaryInstruction},
	}

	content, err := a.complete(messages)
	if err != nil {
		return fmt.Errorf("summary request failed: %w", err)
	}

	content = strings.TrimSpace(content)
	if content == "" || content == "NOTHING_TO_SUMMARIZE" {
		a.logger.Debug("Provider had nothing to summarize")
		return nil
	}

	return a.storeAndBroadcast(&sqlite.AssistantNoteRecord{
		SessionID: sessionID,
		Kind:      sqlite.NoteKindSummary,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// AnswerQuestion fires a one-shot suggested-answer request for a question the
// reconciler detected in the remote party's speech. Safe to call from the
// session consumer goroutine; the provider call runs in the background.
func (a *Assistant) AnswerQuestion(sessionID, question string) {
	if !a.config.Enabled {
		return
	}
	if strings.TrimSpace(question) == "" {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.answerQuestion(sessionID, question); err != nil {
			a.logger.Error("Error answering question", String("question", question), Error(err))
		}
	}()
}

func (a *Assistant) answerQuestion(sessionID, question string) error {
	transcript, _, err := a.renderTranscript(sessionID)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("%s\n\nThe remote party just asked: %q\n\nSuggest a short, direct answer I could give, based only on the conversation above. If the transcript does not contain enough information, say what is missing.", transcript, question)

	messages := []ChatMessage{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: prompt},
	}

	content, err := a.complete(messages)
	if err != nil {
		return fmt.Errorf("answer request failed: %w", err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("provider returned empty answer")
	}

	return a.storeAndBroadcast(&sqlite.AssistantNoteRecord{
		SessionID: sessionID,
		Kind:      sqlite.NoteKindAnswer,
		Question:  question,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// renderTranscript fetches the recent finalized bubbles and renders them as
// speaker-labeled lines. Returns the rendered text and the bubble count.
func (a *Assistant) renderTranscript(sessionID string) (string, int, error) {
	limit := a.config.ContextBubbles
	if limit <= 0 {
		limit = 30
	}

	bubbles, err := a.transcriptStorage.GetRecentFinalBubbles(sessionID, limit)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get transcript context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Transcript (oldest first):\n")
	for _, b := range bubbles {
		speaker := "THEM"
		if b.Source == "mic" {
			speaker = "ME"
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", b.Timestamp.Format("15:04:05"), speaker, b.Text))
	}

	return sb.String(), len(bubbles), nil
}

func (a *Assistant) complete(messages []ChatMessage) (string, error) {
	timeout := time.Duration(a.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	return a.chatProvider.ChatCompletion(ctx, messages, ChatConfig{
		Model:       a.config.Model,
		Temperature: 0.3,
		MaxTokens:   1024,
	})
}

func (a *Assistant) storeAndBroadcast(record *sqlite.AssistantNoteRecord) error {
	id, err := a.assistantStorage.StoreNote(record)
	if err != nil {
		return fmt.Errorf("failed to store assistant note: %w", err)
	}

	a.logger.Info("Stored assistant note",
		Int64("note_id", id),
		String("kind", record.Kind),
		String("session_id", record.SessionID))

	if a.wsServer != nil {
		a.wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeAssistantUpdate,
			Data: map[string]any{
				"note_id":    id,
				"session_id": record.SessionID,
				"kind":       record.Kind,
				"question":   record.Question,
				"content":    record.Content,
				"created_at": record.CreatedAt.Format(time.RFC3339),
			},
		})
	}

	return nil
}
