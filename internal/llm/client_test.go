package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// looseChatRequest 只解析关心的字段，content可能是字符串也可能是分段数组
type looseChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

// newChatServer 模拟OpenAI兼容的聊天接口
func newChatServer(t *testing.T, handler func(w http.ResponseWriter, req looseChatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req looseChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
}

func writeChatResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1720000000,
		"model":   ModelLlama3_70B,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func TestNewClientRegistry(t *testing.T) {
	_, err := NewClient("unknown")
	require.Error(t, err)

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)

	_, err = NewClient("groq")
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)

	client, err := NewClient("groq", WithAPIKey("gsk_test"))
	require.NoError(t, err)
	assert.Equal(t, ModelLlama3_70B, client.Name())
}

func TestGroqClientChat(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ModelLlama3_70B, req.Model)
		assert.InDelta(t, 0.3, req.Temperature, 1e-6)
		assert.Equal(t, 512, req.MaxTokens)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
			assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
			assert.Equal(t, "question", req.Messages[1].Content)
		}

		writeChatResponse(w, "  The grace period is thirty days.  ")
	}))
	defer server.Close()

	client, err := NewGroqClient(
		WithAPIKey("gsk_test"),
		WithBaseURL(server.URL+"/openai/v1/chat/completions"),
	)
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer gsk_test", gotAuth)
	assert.Equal(t, "/openai/v1/chat/completions", gotPath)
	assert.Equal(t, "  The grace period is thirty days.  ", resp.Text)
	assert.Equal(t, 15, resp.TokenCount)
}

func TestGroqClientErrors(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantCode     int
		wantFallback string
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"tokens"}}`))
			},
			wantCode:     ErrCodeRateLimited,
			wantFallback: FallbackAPIError,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantCode:     ErrCodeServerError,
			wantFallback: FallbackAPIError,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
			},
			wantCode:     ErrCodeHTTPStatus,
			wantFallback: FallbackAPIError,
		},
		{
			name: "missing choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
			},
			wantCode:     ErrCodeMalformedResponse,
			wantFallback: FallbackResponseFormat,
		},
		{
			name: "missing content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant"}}]}`))
			},
			wantCode:     ErrCodeMalformedResponse,
			wantFallback: FallbackResponseFormat,
		},
		{
			name: "body is not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>gateway</html>`))
			},
			wantCode:     ErrCodeDecodeError,
			wantFallback: FallbackTechnicalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client, err := NewGroqClient(WithAPIKey("k"), WithBaseURL(server.URL))
			require.NoError(t, err)

			_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
			require.Error(t, err)

			var llmErr LLMError
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.wantFallback, FallbackAnswer(err))
		})
	}
}

func TestGroqClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewGroqClient(WithAPIKey("k"), WithBaseURL(url), WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Equal(t, FallbackAPIError, FallbackAnswer(err))
}

func TestGroqClientEmptyMessages(t *testing.T) {
	client, err := NewGroqClient(WithAPIKey("k"))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), nil)
	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)
	assert.Equal(t, FallbackTechnicalError, FallbackAnswer(err))
}

func TestLangChainClient(t *testing.T) {
	server := newChatServer(t, func(w http.ResponseWriter, req looseChatRequest) {
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
		}
		writeChatResponse(w, "Covered after 24 months.")
	})
	defer server.Close()

	client, err := NewClient("openai",
		WithAPIKey("sk-test"),
		WithModel("gpt-4o-mini"),
		WithBaseURL(server.URL+"/chat/completions"),
	)
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "Is cataract surgery covered?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Covered after 24 months.", resp.Text)
}

func TestBaseURLFromEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.groq.com/openai/v1", baseURLFromEndpoint(DefaultGroqEndpoint))
	assert.Equal(t, "https://api.openai.com/v1", baseURLFromEndpoint("https://api.openai.com/v1/"))
}

func TestFallbackAnswer(t *testing.T) {
	assert.Equal(t, FallbackAPIError, FallbackAnswer(NewLLMError(ErrCodeNetworkError, "dial tcp")))
	assert.Equal(t, FallbackAPIError, FallbackAnswer(NewHTTPError(401, "unauthorized")))
	assert.Equal(t, FallbackResponseFormat, FallbackAnswer(NewLLMError(ErrCodeMalformedResponse, "x")))
	assert.Equal(t, FallbackTechnicalError, FallbackAnswer(assert.AnError))
}
