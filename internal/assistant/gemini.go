package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/codev612/hearnow/pkg/logger"
	"google.golang.org/genai"
)

// GeminiProvider implements ChatProvider using the Google Gemini API
type GeminiProvider struct {
	client *genai.Client
	logger *logger.Logger
}

// NewGeminiProvider creates a Gemini chat client
func NewGeminiProvider(ctx context.Context, apiKey string, log *logger.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		logger: log.Named("gemini-chat"),
	}, nil
}

// ChatCompletion sends the conversation to the Gemini generateContent API.
// System messages map to the system instruction; assistant messages map to
// the "model" role.
func (p *GeminiProvider) ChatCompletion(ctx context.Context, messages []ChatMessage, config ChatConfig) (string, error) {
	var systemParts []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, msg.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no user messages to send")
	}

	genConfig := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		genConfig.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}
	if config.Temperature != 0 {
		genConfig.Temperature = genai.Ptr(float32(config.Temperature))
	}
	if config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(config.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, config.Model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("Gemini generateContent failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no content in Gemini response")
	}

	return text, nil
}
