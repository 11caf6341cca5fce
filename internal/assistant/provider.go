package assistant

import "context"

// ChatMessage represents a message in a chat conversation
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// ChatConfig holds per-request settings for a chat completion
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatProvider is implemented by LLM backends that can complete a chat
// conversation (OpenAI chat completions, Gemini generateContent)
type ChatProvider interface {
	ChatCompletion(ctx context.Context, messages []ChatMessage, config ChatConfig) (string, error)
}
