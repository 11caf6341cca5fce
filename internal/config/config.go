package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server      ServerConfig      `toml:"server"`      // HTTP server settings
	Logging     LoggingConfig     `toml:"logging"`     // Application logging settings
	Storage     StorageConfig     `toml:"storage"`     // Data persistence settings
	Audio       AudioConfig       `toml:"audio"`       // Audio capture and chunking settings
	ASR         ASRConfig         `toml:"asr"`         // Speech-to-text provider settings
	Suppression SuppressionConfig `toml:"suppression"` // Echo suppression tuning
	Assistant   AssistantConfig   `toml:"assistant"`   // Meeting assistant (LLM) settings
	OpenAI      OpenAIConfig      `toml:"openai"`      // OpenAI service settings (base URL, etc.)
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve static files from (e.g., "www")
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type               string `toml:"type"`                  // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath     string `toml:"sqlite_base_path"`      // Base path for SQLite database files (actual filename is generated as hearnow-YYYY-MM-DD.db)
	MaxBubblesInAPI    int    `toml:"max_bubbles_in_api"`    // Maximum number of transcript bubbles to return in the transcript API response
	RetentionDays      int    `toml:"retention_days"`        // Days to keep past session data before cleanup (0 = keep forever)
	CleanupIntervalMin int    `toml:"cleanup_interval_mins"` // How often the retention cleanup runs (in minutes)
}

// AudioConfig contains audio capture and chunking settings. Both capture
// sources deliver PCM frames matching these parameters; the defaults mirror
// the desktop capture shim (16 kHz mono PCM16 in 40 ms frames).
type AudioConfig struct {
	SampleRate     int    `toml:"sample_rate"`      // Audio sample rate in Hz
	Channels       int    `toml:"channels"`         // Number of audio channels (1 for mono)
	FrameBytes     int    `toml:"frame_bytes"`      // Size of a single capture frame in bytes
	ChunkMs        int    `toml:"chunk_ms"`         // Size of accumulated audio chunks sent to the provider, in milliseconds
	PollIntervalMs int    `toml:"poll_interval_ms"` // How often pull-based sources are polled for a frame, in milliseconds
	MicPipePath    string `toml:"mic_pipe_path"`    // Named pipe the capture shim writes raw mic PCM to
	SystemPipePath string `toml:"system_pipe_path"` // Named pipe the capture shim writes system-audio PCM to
}

// ASRConfig contains settings for the speech-to-text provider
type ASRConfig struct {
	// OpenAI API settings
	OpenAIAPIKey   string `toml:"openai_api_key"`  // OpenAI API key for transcription service
	Model          string `toml:"model"`           // OpenAI model to use (e.g., "gpt-4o-transcribe")
	Language       string `toml:"language"`        // Primary language for transcription (e.g., "en" for English)
	PromptPath     string `toml:"prompt_path"`     // Path to the system prompt file for transcription
	NoiseReduction string `toml:"noise_reduction"` // Noise reduction mode: "near_field", "far_field", or "none"

	// Connection management
	ReconnectIntervalSec int `toml:"reconnect_interval_sec"` // Seconds to wait before reconnecting after failure
	MaxRetries           int `toml:"max_retries"`            // Maximum number of connection retry attempts

	// Voice activity detection (VAD) settings
	TurnDetectionType string  `toml:"turn_detection_type"` // Method for detecting speech turns (e.g., "server_vad")
	PrefixPaddingMs   int     `toml:"prefix_padding_ms"`   // Milliseconds of audio to include before detected speech
	SilenceDurationMs int     `toml:"silence_duration_ms"` // Milliseconds of silence to consider end of speech
	VADThreshold      float64 `toml:"vad_threshold"`       // Threshold for voice activity detection (0.0-1.0)

	// HTTP timeout settings
	TimeoutSeconds int `toml:"timeout_seconds"` // HTTP timeout for OpenAI API requests in seconds
}

// SuppressionConfig contains echo suppression tuning. Zero values fall back
// to the built-in defaults at session start.
type SuppressionConfig struct {
	MicSimilarityThreshold    float64 `toml:"mic_similarity_threshold"`       // Score above which an inbound mic final is dropped as echo
	SystemSimilarityThreshold float64 `toml:"system_similarity_threshold"`    // Score above which an admitted mic bubble is replaced by the system version
	SimilarityWindowSecs      int     `toml:"similarity_window_seconds"`      // How far back similarity scans look, in seconds
	ScanDepth                 int     `toml:"scan_depth"`                     // How many recent bubbles a similarity scan inspects
	CaptureHoldoffMs          int     `toml:"capture_holdoff_ms"`             // How long after a system final mic capture is withheld, in milliseconds
	EarlySessionWindowSecs    int     `toml:"early_session_window_seconds"`   // Startup period during which mic is suppressed while only the system talks
	SystemActivityWindowSecs  int     `toml:"system_activity_window_seconds"` // How long a system final counts as active system audio
	PhoneticMatching          bool    `toml:"phonetic_matching"`              // Also compare utterances by Double Metaphone codes
}

// AssistantConfig contains settings for the meeting assistant summaries and
// suggested answers
type AssistantConfig struct {
	Enabled          bool   `toml:"enabled"`            // Enable or disable the assistant
	Provider         string `toml:"provider"`           // LLM provider: "openai" or "gemini"
	Model            string `toml:"model"`              // Model to use for assistant calls
	IntervalSeconds  int    `toml:"interval_seconds"`   // How often the periodic summary runs (in seconds)
	ContextBubbles   int    `toml:"context_bubbles"`    // Number of recent transcript bubbles to include as context
	SystemPromptPath string `toml:"system_prompt_path"` // Path to the system prompt file
	TimeoutSeconds   int    `toml:"timeout_seconds"`    // HTTP timeout for assistant API requests in seconds

	// Provider API keys
	OpenAIAPIKey string `toml:"openai_api_key"` // OpenAI API key for chat completions
	GeminiAPIKey string `toml:"gemini_api_key"` // Google Gemini API key
}

// OpenAIConfig contains OpenAI service configuration such as base URL and
// endpoint path overrides. This allows using self-hosted or proxy endpoints
// instead of the default api.openai.com.
type OpenAIConfig struct {
	// BaseURL is the base endpoint for OpenAI API requests, for example:
	// - "https://api.openai.com" (default)
	// - "https://your-proxy.example.com/openai"
	// If empty, the application will default to "https://api.openai.com".
	BaseURL string `toml:"base_url"`

	// RealtimeWebsocketPath is the base path used for building websocket URLs
	// (wss/ws). The websocket URL is constructed by converting the BaseURL
	// scheme (http->ws, https->wss) and appending this path and query params.
	// Default: /v1/realtime
	RealtimeWebsocketPath string `toml:"realtime_websocket_path"`

	// TranscriptionSessionPath is the path used to create transcription sessions (POST).
	// Default: /v1/realtime/transcription_sessions
	TranscriptionSessionPath string `toml:"transcription_session_path"`

	// ChatCompletionsPath is the path used for chat completions / responses.
	// Default: /v1/chat/completions
	ChatCompletionsPath string `toml:"chat_completions_path"`
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Location in configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Set default static files directory if not specified
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLiteBasePath == "" {
		return fmt.Errorf("sqlite_base_path is required when storage type is sqlite")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("invalid retention_days value: %d (must be >= 0)", c.Storage.RetentionDays)
	}
	// Set default value for MaxBubblesInAPI if not specified
	if c.Storage.MaxBubblesInAPI <= 0 {
		c.Storage.MaxBubblesInAPI = 500
	}
	if c.Storage.CleanupIntervalMin <= 0 {
		c.Storage.CleanupIntervalMin = 60
	}

	// Validate audio config
	if err := c.ValidateAudio(); err != nil {
		return err
	}

	// Validate suppression config
	if err := c.ValidateSuppression(); err != nil {
		return err
	}

	// Validate assistant config
	if c.Assistant.Enabled {
		switch c.Assistant.Provider {
		case "openai", "gemini":
			// Valid provider
		default:
			return fmt.Errorf("invalid assistant provider: %s (must be 'openai' or 'gemini')", c.Assistant.Provider)
		}
		if c.Assistant.IntervalSeconds <= 0 {
			return fmt.Errorf("invalid assistant interval_seconds: %d", c.Assistant.IntervalSeconds)
		}
		if c.Assistant.ContextBubbles < 0 {
			return fmt.Errorf("invalid context_bubbles value: %d (must be >= 0)", c.Assistant.ContextBubbles)
		}
	}

	// Validate API keys for enabled features
	if err := c.ValidateAPIKeys(); err != nil {
		return err
	}

	// Ensure OpenAI base URL and endpoint paths are set to sensible defaults
	// if not configured. This lets users override the OpenAI endpoint and path
	// mappings in configs/config.toml under [openai].
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com"
	}
	if c.OpenAI.RealtimeWebsocketPath == "" {
		c.OpenAI.RealtimeWebsocketPath = "/v1/realtime"
	}
	if c.OpenAI.TranscriptionSessionPath == "" {
		c.OpenAI.TranscriptionSessionPath = "/v1/realtime/transcription_sessions"
	}
	if c.OpenAI.ChatCompletionsPath == "" {
		c.OpenAI.ChatCompletionsPath = "/v1/chat/completions"
	}

	return nil
}

// ValidateAudio validates the audio configuration and applies the capture
// shim defaults for unset fields
func (c *Config) ValidateAudio() error {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FrameBytes == 0 {
		c.Audio.FrameBytes = 1280 // 40 ms of 16 kHz mono PCM16
	}
	if c.Audio.ChunkMs == 0 {
		c.Audio.ChunkMs = 200
	}
	if c.Audio.PollIntervalMs == 0 {
		c.Audio.PollIntervalMs = 40
	}
	if c.Audio.MicPipePath == "" {
		c.Audio.MicPipePath = "/tmp/hearnow-mic.pcm"
	}
	if c.Audio.SystemPipePath == "" {
		c.Audio.SystemPipePath = "/tmp/hearnow-system.pcm"
	}

	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 48000 {
		return fmt.Errorf("invalid audio sample_rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("invalid audio channels: %d (must be 1 or 2)", c.Audio.Channels)
	}
	if c.Audio.FrameBytes <= 0 {
		return fmt.Errorf("invalid audio frame_bytes: %d", c.Audio.FrameBytes)
	}
	if c.Audio.ChunkMs <= 0 {
		return fmt.Errorf("invalid audio chunk_ms: %d", c.Audio.ChunkMs)
	}

	return nil
}

// ValidateSuppression validates the echo suppression configuration. Zero
// values are allowed and mean "use the built-in default".
func (c *Config) ValidateSuppression() error {
	if c.Suppression.MicSimilarityThreshold < 0 || c.Suppression.MicSimilarityThreshold > 1 {
		return fmt.Errorf("invalid mic_similarity_threshold: %f (must be between 0 and 1)", c.Suppression.MicSimilarityThreshold)
	}
	if c.Suppression.SystemSimilarityThreshold < 0 || c.Suppression.SystemSimilarityThreshold > 1 {
		return fmt.Errorf("invalid system_similarity_threshold: %f (must be between 0 and 1)", c.Suppression.SystemSimilarityThreshold)
	}
	if c.Suppression.SimilarityWindowSecs < 0 {
		return fmt.Errorf("invalid similarity_window_seconds: %d", c.Suppression.SimilarityWindowSecs)
	}
	if c.Suppression.ScanDepth < 0 {
		return fmt.Errorf("invalid scan_depth: %d", c.Suppression.ScanDepth)
	}
	if c.Suppression.CaptureHoldoffMs < 0 {
		return fmt.Errorf("invalid capture_holdoff_ms: %d", c.Suppression.CaptureHoldoffMs)
	}
	if c.Suppression.EarlySessionWindowSecs < 0 {
		return fmt.Errorf("invalid early_session_window_seconds: %d", c.Suppression.EarlySessionWindowSecs)
	}
	if c.Suppression.SystemActivityWindowSecs < 0 {
		return fmt.Errorf("invalid system_activity_window_seconds: %d", c.Suppression.SystemActivityWindowSecs)
	}
	return nil
}

// ValidateAPIKeys validates provider API keys for enabled features
func (c *Config) ValidateAPIKeys() error {
	// Check transcription API key - transcription is always available if configured
	if c.ASR.OpenAIAPIKey == "" {
		fmt.Printf("WARN: No OpenAI API key provided for transcription - transcription features will be disabled\n")
	}

	// Check assistant API key if the assistant is enabled
	if c.Assistant.Enabled {
		switch c.Assistant.Provider {
		case "openai":
			if c.Assistant.OpenAIAPIKey == "" && c.ASR.OpenAIAPIKey == "" {
				fmt.Printf("WARN: Assistant is enabled but no OpenAI API key provided - assistant features will be disabled\n")
			}
		case "gemini":
			if c.Assistant.GeminiAPIKey == "" {
				fmt.Printf("WARN: Assistant is enabled but no Gemini API key provided - assistant features will be disabled\n")
			}
		}
	}

	return nil
}
