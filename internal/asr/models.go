package asr

// Config represents the configuration for a transcription stream
type Config struct {
	// Model and audio settings
	Model          string
	Language       string
	NoiseReduction string
	PromptPath     string
	Prompt         string // Loaded from PromptPath

	// Connection management
	ReconnectIntervalSec int
	MaxRetries           int

	// Voice activity detection (VAD) settings
	TurnDetectionType string
	PrefixPaddingMs   int
	SilenceDurationMs int
	VADThreshold      float64

	// HTTP timeout for API requests
	TimeoutSeconds int
}
