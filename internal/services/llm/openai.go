package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient generates completions through the official OpenAI SDK. The SDK
// retries 408/409/429/5xx responses on its own.
type OpenAIClient struct {
	client  openai.Client
	model   string
	apiKey  string
	timeout time.Duration
}

// NewOpenAIClient constructs an SDK-backed generator. A custom BaseURL lets
// the client target any OpenAI-compatible endpoint.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	timeout := cfg.timeout()
	apiKey := strings.TrimSpace(cfg.APIKey)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   model,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

// Generate issues a JSON-mode chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", errors.New("openai generate: user prompt required")
	}
	if c.apiKey == "" {
		return "", errors.New("openai generate: api key required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", &emptyContentError{Op: "openai generate", Snippet: "<no choices>"}
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", &emptyContentError{
			Op:           "openai generate",
			FinishReason: string(completion.Choices[0].FinishReason),
			Refusal:      completion.Choices[0].Message.Refusal,
			Snippet:      "<empty>",
		}
	}
	return content, nil
}
