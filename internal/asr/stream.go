package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codev612/hearnow/internal/transcript"
	"github.com/codev612/hearnow/pkg/logger"
)

// Import the logger package's exported functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// Stream manages one realtime transcription connection for a capture side.
// Audio chunks are pushed in via AppendAudio; normalized transcript events
// come out on the events channel the owning session provided.
//
// A stream holds its provider session open for the whole recording session,
// refreshing it before the provider-side expiry.
type Stream struct {
	source       transcript.Source
	openaiClient *OpenAIClient
	events       chan<- transcript.Event
	ctx          context.Context
	cancel       context.CancelFunc
	logger       *logger.Logger

	streamConfig Config
	sessionID    string
	clientSecret string
	wsConn       *OpenAIWebSocketConn

	chunkCount   int
	chunkCountMu sync.Mutex

	sessionStartTime time.Time
	sessionRefreshMu sync.Mutex

	// Set on Stop; late provider events are discarded instead of being
	// delivered to a consumer that is no longer reading.
	stopped atomic.Bool
}

// NewStream creates a transcription stream for one capture side. Events are
// delivered on the provided channel tagged with the stream's source.
func NewStream(
	ctx context.Context,
	source transcript.Source,
	client *OpenAIClient,
	config Config,
	events chan<- transcript.Event,
	log *logger.Logger,
) *Stream {
	streamCtx, streamCancel := context.WithCancel(ctx)

	return &Stream{
		source:       source,
		openaiClient: client,
		events:       events,
		ctx:          streamCtx,
		cancel:       streamCancel,
		logger:       log.Named("asr-stream").With(String("source", source.String())),
		streamConfig: config,
	}
}

// Start creates the provider session and starts the receive loop
func (s *Stream) Start() error {
	s.logger.Info("Starting transcription stream")

	var err error
	s.sessionID, s.clientSecret, err = s.openaiClient.CreateSession(s.ctx, s.streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create transcription session: %w", err)
	}
	s.logger.Info("Created transcription session", String("session_id", s.sessionID))

	s.sessionStartTime = time.Now()

	s.wsConn, err = s.openaiClient.ConnectWebSocket(s.ctx, s.sessionID, s.clientSecret)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	s.logger.Info("Connected to OpenAI WebSocket")

	go s.processEvents()
	go s.monitorSessionDuration()

	return nil
}

// Stop stops the stream. No events are emitted after Stop returns.
func (s *Stream) Stop() error {
	s.logger.Info("Stopping transcription stream")

	s.stopped.Store(true)
	s.cancel()

	if s.wsConn != nil {
		s.wsConn.Close()
	}

	return nil
}

// AppendAudio forwards a PCM chunk to the provider. Implements the chunk
// sink the audio pump writes to.
func (s *Stream) AppendAudio(chunk []byte) error {
	if s.stopped.Load() {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(chunk)

	message := map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": encoded,
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal audio chunk message: %w", err)
	}

	// Log every 100th chunk to avoid excessive logging
	s.chunkCountMu.Lock()
	s.chunkCount++
	chunkCount := s.chunkCount
	s.chunkCountMu.Unlock()

	if chunkCount%100 == 0 {
		s.logger.Debug("Sending audio chunk", Int("chunk_number", chunkCount))
	}

	if err := s.wsConn.Send(string(data)); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}

	return nil
}

// emit delivers a normalized event to the session, unless the stream has
// been stopped since the provider produced it.
func (s *Stream) emit(text string, isFinal bool) {
	if s.stopped.Load() {
		return
	}

	event := transcript.Event{
		Source:     s.source,
		Text:       text,
		IsFinal:    isFinal,
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case s.events <- event:
	case <-s.ctx.Done():
	}
}

// processEvents processes transcription events from OpenAI
func (s *Stream) processEvents() {
	s.logger.Info("Starting transcription event processing",
		String("session_id", s.sessionID))

	// Track reconnection attempts
	reconnectAttempts := 0
	maxReconnectAttempts := 5
	lastReconnectTime := time.Now()
	reconnectBackoffSeconds := 1

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Transcription event processing stopped due to context cancellation")
			return
		default:
			// Receive message from OpenAI
			message, err := s.wsConn.Receive()
			if err != nil {
				// Check if context is canceled or connection is closed
				select {
				case <-s.ctx.Done():
					// This is an expected error during shutdown
					s.logger.Info("WebSocket connection closed during shutdown",
						String("session_id", s.sessionID))
					return
				default:
					// Categorize the error
					isReconnectableError := false
					errorMsg := err.Error()

					// Common WebSocket errors that indicate connection issues
					reconnectableErrors := []string{
						"websocket: close 1000 (normal)",
						"websocket: close 1001 (going away)",
						"websocket: close 1006 (abnormal closure)",
						"websocket: close 1006 (abnormal closure): unexpected EOF",
						"use of closed network connection",
						"connection reset by peer",
						"EOF",
						"websocket: close sent",
						"websocket: close received",
						"i/o timeout",
						"read: connection reset by peer",
					}

					for _, reconnectErr := range reconnectableErrors {
						if errorMsg == reconnectErr || strings.Contains(errorMsg, reconnectErr) {
							isReconnectableError = true
							break
						}
					}

					if isReconnectableError {
						s.logger.Warn("WebSocket connection issue detected",
							Error(err),
							String("session_id", s.sessionID),
							Int("reconnect_attempts", reconnectAttempts))
					} else {
						s.logger.Error("Error receiving WebSocket message",
							Error(err),
							String("session_id", s.sessionID))
					}

					// Don't immediately return on network errors during shutdown
					if s.ctx.Err() != nil {
						return
					}

					// For reconnectable errors, try to reconnect with backoff
					if isReconnectableError {
						// Check if we've exceeded max reconnect attempts
						if reconnectAttempts >= maxReconnectAttempts {
							timeSinceLastReconnect := time.Since(lastReconnectTime)
							// Reset counter if it's been a while since last reconnect attempt
							if timeSinceLastReconnect > time.Minute*5 {
								s.logger.Info("Resetting reconnection counter after cooling period")
								reconnectAttempts = 0
								reconnectBackoffSeconds = 1
							} else {
								s.logger.Error("Exceeded maximum reconnection attempts",
									Int("max_attempts", maxReconnectAttempts))
								return
							}
						}

						// Apply exponential backoff
						backoffDuration := time.Duration(reconnectBackoffSeconds) * time.Second
						s.logger.Info("WebSocket connection closed, waiting before reconnect attempt",
							String("backoff_duration", backoffDuration.String()),
							Int("attempt", reconnectAttempts+1))

						time.Sleep(backoffDuration)

						// Attempt to reconnect
						if err := s.reconnectOpenAI(); err != nil {
							reconnectAttempts++
							reconnectBackoffSeconds = min(reconnectBackoffSeconds*2, 60) // Cap at 60 seconds
							s.logger.Error("Failed to reconnect to OpenAI",
								Error(err),
								Int("reconnect_attempts", reconnectAttempts),
								Int("next_backoff_seconds", reconnectBackoffSeconds))
						} else {
							s.logger.Info("Successfully reconnected to OpenAI WebSocket",
								String("session_id", s.sessionID))
							reconnectAttempts = 0
							reconnectBackoffSeconds = 1
							lastReconnectTime = time.Now()
						}
						continue
					}

					// For other unexpected errors, return
					return
				}
			}

			// Reset reconnect attempts on successful message
			if reconnectAttempts > 0 {
				reconnectAttempts = 0
				reconnectBackoffSeconds = 1
			}

			// Parse message
			var event map[string]interface{}
			if err := json.Unmarshal([]byte(message), &event); err != nil {
				s.logger.Error("Error parsing event", Error(err))
				continue
			}

			// Get event type
			eventType, ok := event["type"].(string)
			if !ok {
				s.logger.Error("Event missing type field", String("event", message))
				continue
			}

			// Process event based on type
			switch eventType {
			case "conversation.item.input_audio_transcription.delta":
				// Partial transcript for the current utterance
				deltaText, ok := event["delta"].(string)
				if !ok {
					s.logger.Error("Delta event missing delta field", String("event", message))
					continue
				}

				s.logger.Debug("Received delta transcription", String("text", deltaText))
				s.emit(deltaText, false)

			case "conversation.item.input_audio_transcription.completed":
				// Final transcript for the current utterance
				transcriptText, ok := event["transcript"].(string)
				if !ok {
					s.logger.Error("Completed event missing transcript field", String("event", message))
					continue
				}

				s.logger.Debug("Received completed transcription", String("text", transcriptText))
				s.emit(transcriptText, true)

			case "error":
				// Handle error
				errorObj, ok := event["error"].(map[string]interface{})
				if !ok {
					s.logger.Error("Error event missing error field", String("event", message))
					continue
				}

				errorMessage, ok := errorObj["message"].(string)
				if !ok {
					s.logger.Error("Error object missing message field", String("event", message))
					continue
				}

				s.logger.Error("Received error from OpenAI", String("error", errorMessage))

				// Check if session expired
				errorCode, ok := errorObj["code"].(string)
				if ok && errorCode == "session_expired" {
					s.logger.Info("Session expired, reconnecting")
					if err := s.reconnectOpenAI(); err != nil {
						s.logger.Error("Failed to reconnect to OpenAI", Error(err))
						return
					}
				}
			}
		}
	}
}

// reconnectOpenAI creates a fresh provider session and reconnects
func (s *Stream) reconnectOpenAI() error {
	s.sessionRefreshMu.Lock()
	defer s.sessionRefreshMu.Unlock()

	// Close existing connection
	if s.wsConn != nil {
		s.wsConn.Close()
	}

	// Create new session
	var err error
	s.sessionID, s.clientSecret, err = s.openaiClient.CreateSession(s.ctx, s.streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create new transcription session: %w", err)
	}
	s.logger.Info("Created new transcription session", String("session_id", s.sessionID))

	// Reset session start time
	s.sessionStartTime = time.Now()

	// Connect to WebSocket
	s.wsConn, err = s.openaiClient.ConnectWebSocket(s.ctx, s.sessionID, s.clientSecret)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	s.logger.Info("Reconnected to OpenAI WebSocket")

	return nil
}

// monitorSessionDuration monitors the session duration and refreshes it before it expires
func (s *Stream) monitorSessionDuration() {
	// OpenAI sessions expire after 30 minutes, so refresh at 25 minutes to be safe
	sessionRefreshInterval := 25 * time.Minute

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Session monitoring stopped due to context cancellation")
			return
		case <-time.After(1 * time.Minute): // Check every minute
			sessionDuration := time.Since(s.sessionStartTime)

			// If session is approaching expiration, refresh it
			if sessionDuration >= sessionRefreshInterval {
				s.logger.Info("Session approaching expiration, proactively refreshing",
					String("session_duration", sessionDuration.String()))

				if err := s.reconnectOpenAI(); err != nil {
					s.logger.Error("Failed to proactively refresh session", Error(err))
					// Continue monitoring even if refresh fails
				} else {
					s.logger.Info("Successfully refreshed session before expiration")
				}
			}
		}
	}
}
