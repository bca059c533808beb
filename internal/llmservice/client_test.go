package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
)

type fakeModel struct {
	content  string
	err      error
	lastOpts llms.CallOptions
	lastMsgs []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.lastMsgs = messages
	m.lastOpts = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.lastOpts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: m.content,
			GenerationInfo: map[string]any{
				"PromptTokens":     1000,
				"CompletionTokens": 100,
			},
		}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func advisorConfig() *config.AdvisorConfig {
	cfg := config.DefaultConfig().Advisor
	return &cfg
}

func TestParseSplitIndices(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{"plain", `{"split_indices": [0, 523, 1247]}`, []int{0, 523, 1247}, false},
		{"with reasoning", `{"split_indices":[0,10],"reasoning":"topic change"}`, []int{0, 10}, false},
		{"float values", `{"split_indices":[0, 12.0]}`, []int{0, 12}, false},
		{"fenced", "```json\n{\"split_indices\":[0,5]}\n```", []int{0, 5}, false},
		{"missing key", `{"reasoning":"one chunk"}`, []int{0}, false},
		{"empty list", `{"split_indices":[]}`, []int{}, false},
		{"not json", `split at 10`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSplitIndices(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLangchainAdvisor_SuggestSplitOffsets(t *testing.T) {
	model := &fakeModel{content: `{"split_indices":[0,40,90]}`}
	advisor := NewLangchainAdvisor(model, advisorConfig())

	offsets, err := advisor.SuggestSplitOffsets(context.Background(), "some text about angioedema")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 40, 90}, offsets)

	assert.True(t, model.lastOpts.JSONMode)
	assert.InDelta(t, 0.3, model.lastOpts.Temperature, 1e-9)
	assert.Equal(t, 500, model.lastOpts.MaxTokens)
	require.Len(t, model.lastMsgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.lastMsgs[0].Role)

	user := model.lastMsgs[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, user, "some text about angioedema")
	assert.Contains(t, user, "CHARACTER COUNT: 26")

	stats := advisor.Usage()
	assert.Equal(t, 1, stats.Calls)
	assert.Equal(t, 1100, stats.TotalTokens)
	assert.InDelta(t, 1000*0.15/1e6+100*0.60/1e6, stats.TotalCostUSD, 1e-12)
}

func TestLangchainAdvisor_BackendError(t *testing.T) {
	model := &fakeModel{err: errors.New("dial tcp: connection refused")}
	advisor := NewLangchainAdvisor(model, advisorConfig())

	_, err := advisor.SuggestSplitOffsets(context.Background(), "text")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.Zero(t, advisor.Usage().Calls)
}

func TestOpenAIAdvisor_SuggestSplitOffsets(t *testing.T) {
	var gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var body struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotFormat = body.ResponseFormat.Type

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"split_indices\": [0, 15]}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 200, "completion_tokens": 30, "total_tokens": 230}
		}`))
	}))
	defer srv.Close()

	cfg := advisorConfig()
	cfg.Provider = "openai"
	cfg.BaseURL = srv.URL
	cfg.Key = "sk-test"

	advisor, err := NewAdvisor(cfg)
	require.NoError(t, err)

	offsets, err := advisor.SuggestSplitOffsets(context.Background(), "hereditary angioedema overview")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15}, offsets)
	assert.Equal(t, "json_object", gotFormat)

	stats := advisor.(UsageReporter).Usage()
	assert.Equal(t, 230, stats.TotalTokens)
}

func TestOpenAIAdvisor_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	cfg := advisorConfig()
	cfg.BaseURL = srv.URL
	cfg.Key = "sk-test"

	_, err := NewOpenAIAdvisor(cfg).SuggestSplitOffsets(context.Background(), "text")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestNewAdvisor_UnknownProvider(t *testing.T) {
	cfg := advisorConfig()
	cfg.Provider = "claude"
	_, err := NewAdvisor(cfg)
	assert.Error(t, err)
}
