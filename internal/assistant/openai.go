package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// OpenAIProvider implements ChatProvider using the OpenAI chat completions API
type OpenAIProvider struct {
	apiKey              string
	httpClient          *http.Client
	logger              *logger.Logger
	baseURL             string // Stored without trailing slash
	chatCompletionsPath string
}

// NewOpenAIProvider creates a chat completions client. An empty baseURL falls
// back to the OPENAI_API_BASE env var and then the public API endpoint.
func NewOpenAIProvider(apiKey string, timeoutSeconds int, log *logger.Logger, baseURL, chatCompletionsPath string) *OpenAIProvider {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		if env := os.Getenv("OPENAI_API_BASE"); env != "" {
			base = env
		} else {
			base = "https://api.openai.com"
		}
	}
	base = strings.TrimRight(base, "/")

	if chatCompletionsPath == "" {
		chatCompletionsPath = "/v1/chat/completions"
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}

	return &OpenAIProvider{
		apiKey: apiKey,
		logger: log.Named("openai-chat"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		baseURL:             base,
		chatCompletionsPath: chatCompletionsPath,
	}
}

// ChatCompletion sends a chat completion request and returns the first choice
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, messages []ChatMessage, config ChatConfig) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key is required")
	}

	apiURL := p.baseURL + p.chatCompletionsPath

	type Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	type Request struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
		Temperature float64   `json:"temperature"`
	}

	reqMessages := make([]Message, len(messages))
	for i, msg := range messages {
		reqMessages[i] = Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	reqBody := Request{
		Model:       config.Model,
		Messages:    reqMessages,
		MaxTokens:   config.MaxTokens,
		Temperature: config.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat completion failed: %s %s", resp.Status, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}
