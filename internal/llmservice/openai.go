package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
)

// OpenAIAdvisor asks an OpenAI-compatible chat endpoint for split offsets
// through go-openai.
type OpenAIAdvisor struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	usage       Usage
}

func NewOpenAIAdvisor(cfg *config.AdvisorConfig) *OpenAIAdvisor {
	clientCfg := openai.DefaultConfig(strings.TrimPrefix(cfg.Key, "Bearer "))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdvisor{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func (a *OpenAIAdvisor) SuggestSplitOffsets(ctx context.Context, text string) ([]int, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: models.SplitSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(models.SplitUserPromptTemplate, text, len([]rune(text)))},
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	a.usage.add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", models.ErrServiceUnavailable)
	}
	return ParseSplitIndices(resp.Choices[0].Message.Content)
}

func (a *OpenAIAdvisor) Usage() UsageStats {
	return a.usage.Stats()
}
