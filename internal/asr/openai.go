package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codev612/hearnow/pkg/logger"
)

// OpenAIClient handles communication with OpenAI's Realtime Transcription API
type OpenAIClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *logger.Logger
	// baseURL allows overriding the default OpenAI API endpoint (e.g. for proxies).
	// Stored without a trailing slash.
	baseURL   string
	endpoints Endpoints
}

// Endpoints contains API path overrides for proxies or alternative vendors.
// Empty fields fall back to the upstream defaults.
type Endpoints struct {
	TranscriptionSessionPath string // Default: /v1/realtime/transcription_sessions
	RealtimeWebsocketPath    string // Default: /v1/realtime
}

// OpenAIWebSocketConn represents a WebSocket connection to OpenAI
type OpenAIWebSocketConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// DefaultOpenAIBase is the upstream API endpoint used when no override is configured.
var DefaultOpenAIBase = "https://api.openai.com"

// toWebSocketBase converts an http(s) base URL to the corresponding ws(s) URL.
// e.g. https://api.example -> wss://api.example
func toWebSocketBase(httpBase string) string {
	b := strings.TrimRight(httpBase, "/")
	if strings.HasPrefix(b, "https://") {
		return "wss://" + strings.TrimPrefix(b, "https://")
	} else if strings.HasPrefix(b, "http://") {
		return "ws://" + strings.TrimPrefix(b, "http://")
	}
	// If the provided base already looks like ws:// or wss://, return as-is.
	return b
}

// NewOpenAIClient creates a new OpenAI client
// The client will determine the base URL to use in the following order:
// 1. If the optional `baseURL` parameter is provided (non-empty), it will be used.
// 2. If the environment variable OPENAI_API_BASE is set, it will be used.
// 3. Otherwise DefaultOpenAIBase ("https://api.openai.com") is used.
func NewOpenAIClient(apiKey, model string, timeoutSeconds int, log *logger.Logger, baseURL string, endpoints Endpoints) *OpenAIClient {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second // Default to 2 minutes if not specified
	}

	if apiKey == "" {
		log.Warn("OpenAI API key is empty - transcription features will not work")
	}

	// Determine base URL (prefer explicit parameter, then env, then default)
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		if env := os.Getenv("OPENAI_API_BASE"); env != "" {
			base = env
		} else {
			base = DefaultOpenAIBase
		}
	}
	base = strings.TrimRight(base, "/")

	if endpoints.TranscriptionSessionPath == "" {
		endpoints.TranscriptionSessionPath = "/v1/realtime/transcription_sessions"
	}
	if endpoints.RealtimeWebsocketPath == "" {
		endpoints.RealtimeWebsocketPath = "/v1/realtime"
	}

	return &OpenAIClient{
		apiKey:    apiKey,
		model:     model,
		logger:    log.Named("openai"),
		baseURL:   base,
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateSession creates a new transcription session
func (c *OpenAIClient) CreateSession(ctx context.Context, config Config) (string, string, error) {
	// Check if OpenAI API key is provided - fail fast if missing
	if c.apiKey == "" {
		return "", "", fmt.Errorf("OpenAI API key is required for transcription sessions")
	}

	c.logger.Info("Creating new OpenAI transcription session",
		logger.String("model", c.model),
		logger.String("language", config.Language),
		logger.String("noise_reduction", config.NoiseReduction))

	type InputAudioNoiseReduction struct {
		Type string `json:"type"`
	}

	type InputAudioTranscription struct {
		Model    string `json:"model"`
		Language string `json:"language,omitempty"`
		Prompt   string `json:"prompt,omitempty"`
	}

	type TurnDetection struct {
		Type              string   `json:"type,omitempty"`
		PrefixPaddingMs   *int     `json:"prefix_padding_ms,omitempty"`
		SilenceDurationMs *int     `json:"silence_duration_ms,omitempty"`
		Threshold         *float64 `json:"threshold,omitempty"`
	}

	type TranscriptionSessionRequest struct {
		InputAudioFormat         string                    `json:"input_audio_format"`
		InputAudioTranscription  *InputAudioTranscription  `json:"input_audio_transcription"`
		InputAudioNoiseReduction *InputAudioNoiseReduction `json:"input_audio_noise_reduction,omitempty"`
		TurnDetection            *TurnDetection            `json:"turn_detection,omitempty"`
	}

	// Create the request body
	reqBody := TranscriptionSessionRequest{
		InputAudioFormat: "pcm16",
		InputAudioTranscription: &InputAudioTranscription{
			Model:    c.model,
			Language: config.Language,
			Prompt:   config.Prompt,
		},
	}

	// Add noise reduction if specified
	if config.NoiseReduction != "" {
		reqBody.InputAudioNoiseReduction = &InputAudioNoiseReduction{
			Type: config.NoiseReduction,
		}
	}

	// Add turn detection if specified
	if config.TurnDetectionType != "" {
		prefixPaddingMs := config.PrefixPaddingMs
		silenceDurationMs := config.SilenceDurationMs
		threshold := config.VADThreshold

		reqBody.TurnDetection = &TurnDetection{
			Type: config.TurnDetectionType,
		}

		// Only add non-zero values
		if prefixPaddingMs > 0 {
			reqBody.TurnDetection.PrefixPaddingMs = &prefixPaddingMs
		}

		if silenceDurationMs > 0 {
			reqBody.TurnDetection.SilenceDurationMs = &silenceDurationMs
		}

		if threshold > 0 {
			reqBody.TurnDetection.Threshold = &threshold
		}
	}

	// Marshal request body to JSON
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	// Build request URL using configured base URL
	apiURL := c.baseURL + c.endpoints.TranscriptionSessionPath

	// Create request
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("openai-beta", "realtime=v1")

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(bodyBytes))
	}

	// Parse response
	var result struct {
		SessionID    string `json:"session_id"`
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("Parsed OpenAI API response",
		logger.String("session_id", result.SessionID),
		logger.Int64("client_secret_expires_at", result.ClientSecret.ExpiresAt))

	return result.SessionID, result.ClientSecret.Value, nil
}

// ConnectWebSocket establishes a WebSocket connection to the transcription API with retry logic
func (c *OpenAIClient) ConnectWebSocket(ctx context.Context, sessionID, clientSecret string) (*OpenAIWebSocketConn, error) {
	// Create WebSocket URL based on configured base URL (support proxies / alternate hosts)
	wsBase := toWebSocketBase(c.baseURL)
	wsURL := fmt.Sprintf("%s%s?session_id=%s", wsBase, c.endpoints.RealtimeWebsocketPath, url.QueryEscape(sessionID))
	c.logger.Debug("Connecting to OpenAI WebSocket", logger.String("url", wsURL))

	// Create WebSocket dialer
	dialer := websocket.Dialer{
		HandshakeTimeout: 45 * time.Second,
	}

	// Set headers
	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", clientSecret))
	headers.Set("openai-beta", "realtime=v1")

	// Connect to WebSocket with retry logic
	var conn *websocket.Conn
	var resp *http.Response
	var err error

	maxRetries := 3
	retryInterval := 2 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		c.logger.Debug("Attempting to connect to OpenAI WebSocket",
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", maxRetries))

		conn, resp, err = dialer.DialContext(ctx, wsURL, headers)
		if err == nil {
			c.logger.Debug("Successfully connected to OpenAI WebSocket",
				logger.String("status", resp.Status))
			break
		}

		c.logger.Error("Failed to connect to OpenAI WebSocket",
			logger.Int("attempt", attempt+1),
			logger.Error(err))

		if attempt == maxRetries-1 {
			return nil, fmt.Errorf("failed to connect to WebSocket after %d attempts: %w", maxRetries, err)
		}

		// Wait before retrying
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			// Continue with retry
		}
	}

	wsConn := &OpenAIWebSocketConn{
		conn:      conn,
		closeChan: make(chan struct{}),
	}

	return wsConn, nil
}

// Send sends a message to the WebSocket
func (ws *OpenAIWebSocketConn) Send(message string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return fmt.Errorf("WebSocket connection is closed")
	}

	return ws.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

// Receive receives a message from the WebSocket
func (ws *OpenAIWebSocketConn) Receive() (string, error) {
	_, message, err := ws.conn.ReadMessage()
	if err != nil {
		return "", err
	}

	return string(message), nil
}

// Close closes the WebSocket connection
func (ws *OpenAIWebSocketConn) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return nil
	}

	ws.closed = true
	close(ws.closeChan)
	return ws.conn.Close()
}
