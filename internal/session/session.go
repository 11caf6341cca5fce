package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codev612/hearnow/internal/asr"
	"github.com/codev612/hearnow/internal/audio"
	"github.com/codev612/hearnow/internal/storage/sqlite"
	"github.com/codev612/hearnow/internal/transcript"
	"github.com/codev612/hearnow/internal/websocket"
	"github.com/codev612/hearnow/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Int64  = logger.Int64
	Error  = logger.Error
)

// CaptureOpener provides the raw PCM frame sources for a recording session.
// The platform capture shim sits behind this boundary.
type CaptureOpener interface {
	OpenMic(ctx context.Context) (audio.FrameSource, error)
	OpenSystem(ctx context.Context) (audio.FrameSource, error)
}

// Assistant is the subset of the meeting assistant the session layer needs.
type Assistant interface {
	SetActiveSession(sessionID string)
	AnswerQuestion(sessionID, question string)
}

// Config carries the per-session settings assembled by the caller.
type Config struct {
	ASR         asr.Config
	Suppression transcript.SuppressionConfig
	Pump        audio.PumpConfig
	// EventBuffer is the capacity of the event queue between the stream
	// adapters and the reconciler consumer. Defaults to 256.
	EventBuffer int
}

// RecordingSession owns everything with session lifetime: the event queue,
// the reconciler, the suppressor, and both capture-to-transcription
// pipelines. Events from both streams funnel into a single consumer
// goroutine, which is the only goroutine that touches the reconciler.
type RecordingSession struct {
	ID        string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	logger *logger.Logger

	config            Config
	client            *asr.OpenAIClient
	capture           CaptureOpener
	wsServer          *websocket.Server
	transcriptStorage *sqlite.TranscriptStorage
	assistant         Assistant

	reconciler *transcript.Reconciler
	suppressor *transcript.Suppressor
	events     chan transcript.Event

	micStream    *asr.Stream
	systemStream *asr.Stream
	micPump      *audio.Pump
	systemPump   *audio.Pump

	stopped atomic.Bool
	wg      sync.WaitGroup
}

func newRecordingSession(
	ctx context.Context,
	id string,
	client *asr.OpenAIClient,
	capture CaptureOpener,
	wsServer *websocket.Server,
	transcriptStorage *sqlite.TranscriptStorage,
	assistant Assistant,
	config Config,
	log *logger.Logger,
) *RecordingSession {
	sessCtx, sessCancel := context.WithCancel(ctx)

	bufSize := config.EventBuffer
	if bufSize <= 0 {
		bufSize = 256
	}

	sessLog := log.Named("session").With(String("session_id", id))
	startedAt := time.Now().UTC()
	suppressor := transcript.NewSuppressor(config.Suppression, startedAt, sessLog)

	return &RecordingSession{
		ID:                id,
		startedAt:         startedAt,
		ctx:               sessCtx,
		cancel:            sessCancel,
		logger:            sessLog,
		config:            config,
		client:            client,
		capture:           capture,
		wsServer:          wsServer,
		transcriptStorage: transcriptStorage,
		assistant:         assistant,
		reconciler:        transcript.NewReconciler(suppressor, sessLog),
		suppressor:        suppressor,
		events:            make(chan transcript.Event, bufSize),
	}
}

// start brings up both transcription streams, opens the capture sources,
// starts the pumps and the event consumer.
func (s *RecordingSession) start() error {
	s.micStream = asr.NewStream(s.ctx, transcript.SourceMic, s.client, s.config.ASR, s.events, s.logger)
	s.systemStream = asr.NewStream(s.ctx, transcript.SourceSystem, s.client, s.config.ASR, s.events, s.logger)

	// Each stream start is a REST session create plus a websocket
	// handshake; run them concurrently.
	g := new(errgroup.Group)
	g.Go(s.micStream.Start)
	g.Go(s.systemStream.Start)
	if err := g.Wait(); err != nil {
		s.micStream.Stop()
		s.systemStream.Stop()
		s.cancel()
		return fmt.Errorf("failed to start transcription streams: %w", err)
	}

	micSource, err := s.capture.OpenMic(s.ctx)
	if err != nil {
		s.teardownStreams()
		return fmt.Errorf("failed to open mic capture: %w", err)
	}
	systemSource, err := s.capture.OpenSystem(s.ctx)
	if err != nil {
		micSource.Close()
		s.teardownStreams()
		return fmt.Errorf("failed to open system capture: %w", err)
	}

	s.micPump = audio.NewPump(s.ctx, "mic", micSource, s.micStream, s.suppressor, s.config.Pump, s.logger)
	s.systemPump = audio.NewPump(s.ctx, "system", systemSource, s.systemStream, nil, s.config.Pump, s.logger)

	if err := s.micPump.Start(); err != nil {
		s.teardownStreams()
		return fmt.Errorf("failed to start mic pump: %w", err)
	}
	if err := s.systemPump.Start(); err != nil {
		s.micPump.Stop()
		s.teardownStreams()
		return fmt.Errorf("failed to start system pump: %w", err)
	}

	s.wg.Add(1)
	go s.consumeEvents()

	s.logger.Info("Recording session started")
	return nil
}

func (s *RecordingSession) teardownStreams() {
	s.micStream.Stop()
	s.systemStream.Stop()
	s.cancel()
}

// stop shuts the session down: producers first so no new events are queued,
// then the consumer, then the draft downgrade. Queued events that arrive
// after stop are discarded rather than reconciled.
func (s *RecordingSession) stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.logger.Info("Stopping recording session")

	if s.micPump != nil {
		if err := s.micPump.Stop(); err != nil {
			s.logger.Error("Failed to stop mic pump", Error(err))
		}
	}
	if s.systemPump != nil {
		if err := s.systemPump.Stop(); err != nil {
			s.logger.Error("Failed to stop system pump", Error(err))
		}
	}
	if err := s.micStream.Stop(); err != nil {
		s.logger.Error("Failed to stop mic stream", Error(err))
	}
	if err := s.systemStream.Stop(); err != nil {
		s.logger.Error("Failed to stop system stream", Error(err))
	}

	s.cancel()
	s.wg.Wait()

	// Remaining drafts become final bubbles so the transcript ends clean.
	s.applyChanges(s.reconciler.FinalizeDrafts())

	s.logger.Info("Recording session stopped")
}

// consumeEvents is the single reconciler goroutine.
func (s *RecordingSession) consumeEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.applyEvent(ev)
		}
	}
}

func (s *RecordingSession) applyEvent(ev transcript.Event) {
	if s.stopped.Load() {
		return
	}

	eff := s.reconciler.ProcessEvent(ev.Source, ev.Text, ev.IsFinal)
	s.applyChanges(eff.Changes)

	if eff.Suppressed {
		s.logger.Debug("Suppressed mic final as echo", String("text", ev.Text))
	}

	if eff.QuestionDetected {
		s.logger.Info("Question detected", String("text", eff.QuestionText))
		s.wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeQuestionDetected,
			Data: map[string]any{
				"session_id": s.ID,
				"text":       eff.QuestionText,
			},
		})
		if s.assistant != nil {
			s.assistant.AnswerQuestion(s.ID, eff.QuestionText)
		}
	}
}

// applyChanges persists each bubble mutation and mirrors it to connected
// websocket clients.
func (s *RecordingSession) applyChanges(changes []transcript.Change) {
	for _, ch := range changes {
		switch ch.Kind {
		case transcript.BubbleRemoved:
			if err := s.transcriptStorage.DeleteBubble(s.ID, ch.Bubble.ID); err != nil {
				s.logger.Error("Failed to delete bubble", Int64("bubble_id", ch.Bubble.ID), Error(err))
			}
		default:
			record := &sqlite.BubbleRecord{
				ID:        ch.Bubble.ID,
				SessionID: s.ID,
				Source:    ch.Bubble.SourceTag,
				Text:      ch.Bubble.Text,
				Timestamp: ch.Bubble.Timestamp,
				IsDraft:   ch.Bubble.IsDraft,
			}
			if err := s.transcriptStorage.UpsertBubble(record); err != nil {
				s.logger.Error("Failed to store bubble", Int64("bubble_id", ch.Bubble.ID), Error(err))
			}
		}

		s.wsServer.Broadcast(&websocket.Message{
			Type: messageTypeFor(ch.Kind),
			Data: map[string]any{
				"session_id": s.ID,
				"bubble":     ch.Bubble,
			},
		})
	}
}

func messageTypeFor(kind transcript.ChangeKind) string {
	switch kind {
	case transcript.BubbleUpdated:
		return websocket.MessageTypeBubbleUpdated
	case transcript.BubbleRemoved:
		return websocket.MessageTypeBubbleRemoved
	default:
		return websocket.MessageTypeBubbleAdded
	}
}
