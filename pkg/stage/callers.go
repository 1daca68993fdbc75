package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	defaultCallTimeout = 3 * time.Minute
	anthropicMaxTokens = 4096
)

// CallerConfig holds configuration for creating a CallFunc.
type CallerConfig struct {
	Provider string // "openai", "anthropic", or "ollama"
	Model    string
	APIKey   string // explicit API key (highest priority)
	BaseURL  string // override base URL

	// Timeout bounds a single call. Defaults to three minutes.
	Timeout time.Duration

	Logger *zap.Logger
}

// NewCaller creates a CallFunc for the configured provider.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//  3. Fall back to Ollama at localhost:11434
func NewCaller(cfg CallerConfig) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(provider)
	}
	if apiKey == "" && provider != ProviderOllama {
		logger.Warn("no API key found, falling back to ollama", zap.String("provider", provider))
		provider = ProviderOllama
		cfg.Model = ""
		cfg.BaseURL = ""
	}

	switch provider {
	case ProviderOpenAI, "":
		model := cfg.Model
		if model == "" {
			model = goopenai.GPT4oMini
		}
		return newOpenAICaller(apiKey, model, cfg.BaseURL, timeout), nil

	case ProviderAnthropic:
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return newAnthropicCaller(apiKey, model, baseURL, timeout), nil

	case ProviderOllama:
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(model, baseURL, timeout), nil

	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", provider)
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// --- OpenAI caller ---

func newOpenAICaller(apiKey, model, baseURL string, timeout time.Duration) CallFunc {
	config := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	client := goopenai.NewClientWithConfig(config)

	return func(ctx context.Context, c Call) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req := goopenai.ChatCompletionRequest{
			Model: model,
			Messages: []goopenai.ChatCompletionMessage{
				{Role: goopenai.ChatMessageRoleSystem, Content: c.System},
				{Role: goopenai.ChatMessageRoleUser, Content: c.Prompt},
			},
		}
		if c.JSON {
			req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
				Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}

		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("openai request: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newAnthropicCaller(apiKey, model, baseURL string, timeout time.Duration) CallFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, c Call) (string, error) {
		prompt := c.Prompt
		if c.JSON {
			prompt += "\n\nReturn ONLY valid JSON, no markdown or extra text."
		}

		var result anthropicResponse
		err := postJSON(ctx, client, strings.TrimRight(baseURL, "/")+"/v1/messages", anthropicRequest{
			Model:     model,
			MaxTokens: anthropicMaxTokens,
			System:    c.System,
			Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		}, &result, map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": "2023-06-01",
		})
		if err != nil {
			return "", fmt.Errorf("anthropic request: %w", err)
		}
		if result.Error != nil {
			return "", fmt.Errorf("anthropic error: %s", result.Error.Message)
		}

		var text strings.Builder
		for _, block := range result.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", errors.New("anthropic returned no content")
		}
		return text.String(), nil
	}
}

// --- Ollama caller ---

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func newOllamaCaller(model, baseURL string, timeout time.Duration) CallFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, c Call) (string, error) {
		req := ollamaChatRequest{
			Model: model,
			Messages: []ollamaChatMessage{
				{Role: "system", Content: c.System},
				{Role: "user", Content: c.Prompt},
			},
		}
		if c.JSON {
			req.Format = "json"
		}

		var result ollamaChatResponse
		if err := postJSON(ctx, client, strings.TrimRight(baseURL, "/")+"/api/chat", req, &result, nil); err != nil {
			return "", fmt.Errorf("ollama request: %w", err)
		}
		if result.Error != "" {
			return "", fmt.Errorf("ollama error: %s", result.Error)
		}
		return result.Message.Content, nil
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any, headers map[string]string) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
