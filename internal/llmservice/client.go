package llmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
)

// Per-token prices in USD used for the cost estimate.
const (
	promptPricePerToken     = 0.15 / 1_000_000
	completionPricePerToken = 0.60 / 1_000_000
)

// SplitAdvisor suggests chunk boundaries for a piece of text.
type SplitAdvisor interface {
	SuggestSplitOffsets(ctx context.Context, text string) ([]int, error)
}

// UsageReporter is implemented by advisors that track token usage.
type UsageReporter interface {
	Usage() UsageStats
}

// Usage accumulates token accounting across advisory calls.
type Usage struct {
	mu               sync.Mutex
	calls            int
	promptTokens     int
	completionTokens int
}

// UsageStats is a point-in-time copy of Usage.
type UsageStats struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

func (u *Usage) add(prompt, completion int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.promptTokens += prompt
	u.completionTokens += completion
}

// Stats returns the accumulated usage.
func (u *Usage) Stats() UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return UsageStats{
		Calls:            u.calls,
		PromptTokens:     u.promptTokens,
		CompletionTokens: u.completionTokens,
		TotalTokens:      u.promptTokens + u.completionTokens,
		TotalCostUSD:     float64(u.promptTokens)*promptPricePerToken + float64(u.completionTokens)*completionPricePerToken,
	}
}

// LangchainAdvisor asks a langchaingo chat model for split offsets.
type LangchainAdvisor struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	usage       Usage
}

// NewLangchainAdvisor wraps an existing langchaingo model.
func NewLangchainAdvisor(llm llms.Model, cfg *config.AdvisorConfig) *LangchainAdvisor {
	return &LangchainAdvisor{
		llm:         llm,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// NewAdvisor builds the configured split advisor.
func NewAdvisor(cfg *config.AdvisorConfig) (SplitAdvisor, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating split advisor")
	switch cfg.Provider {
	case "langchain":
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("initializing langchain openai client: %w", err)
		}
		return NewLangchainAdvisor(llm, cfg), nil
	case "openai":
		return NewOpenAIAdvisor(cfg), nil
	default:
		return nil, fmt.Errorf("unknown advisor provider %q", cfg.Provider)
	}
}

// SuggestSplitOffsets returns the chunk start offsets proposed by the model.
func (a *LangchainAdvisor) SuggestSplitOffsets(ctx context.Context, text string) ([]int, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := GenerateContent(ctx, a.llm, BuildSplitMessages(text),
		llms.WithJSONMode(),
		llms.WithTemperature(a.temperature),
		llms.WithMaxTokens(a.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", models.ErrServiceUnavailable)
	}

	choice := res.Choices[0]
	a.usage.add(intInfo(choice.GenerationInfo, "PromptTokens"), intInfo(choice.GenerationInfo, "CompletionTokens"))

	return ParseSplitIndices(choice.Content)
}

// Usage reports token consumption so far.
func (a *LangchainAdvisor) Usage() UsageStats {
	return a.usage.Stats()
}

// GenerateContent calls the model with the given messages.
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	return llm.GenerateContent(ctx, messages, opts...)
}

// BuildSplitMessages renders the system and user prompts for one request.
func BuildSplitMessages(text string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SplitSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.SplitUserPromptTemplate, text, len([]rune(text)))),
	}
}

type splitResponse struct {
	SplitIndices *[]float64 `json:"split_indices"`
	Reasoning    string     `json:"reasoning"`
}

// ParseSplitIndices decodes {"split_indices": [...]}. A response without the
// key yields [0], i.e. the whole text as one chunk.
func ParseSplitIndices(content string) ([]int, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var resp splitResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("decoding split indices: %w", err)
	}
	if resp.SplitIndices == nil {
		return []int{0}, nil
	}
	offsets := make([]int, len(*resp.SplitIndices))
	for i, v := range *resp.SplitIndices {
		offsets[i] = int(v)
	}
	return offsets, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
