package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient 基于langchaingo的OpenAI兼容客户端
// 适用于任意提供 /chat/completions 的服务（OpenAI、OpenRouter、Groq等）
type LangChainClient struct {
	llm         *openai.LLM
	model       string
	maxTokens   int
	temperature float32
}

// NewLangChainClient 创建langchaingo客户端
func NewLangChainClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	llm, err := openai.New(
		openai.WithBaseURL(baseURLFromEndpoint(cfg.BaseURL)),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, WrapError(err, ErrCodeInvalidRequest)
	}

	return &LangChainClient{
		llm:         llm,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *LangChainClient) Name() string {
	return c.model
}

// Chat 进行多轮对话
func (c *LangChainClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	maxTokens, temp := resolveChatOptions(c.maxTokens, c.temperature, options)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(toLangChainRole(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(float64(temp))}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		switch {
		case errors.Is(err, openai.ErrEmptyResponse):
			return nil, NewLLMError(ErrCodeMalformedResponse, err.Error())
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, NewLLMError(ErrCodeTimeout, err.Error())
		default:
			return nil, NewLLMError(ErrCodeNetworkError, err.Error())
		}
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, NewLLMError(ErrCodeMalformedResponse, ErrMsgMalformedResponse)
	}

	text := resp.Choices[0].Content
	return &Response{
		Text:       text,
		Messages:   []Message{{Role: RoleAssistant, Content: text}},
		ModelName:  c.model,
		FinishTime: time.Now(),
	}, nil
}

// toLangChainRole 角色映射
func toLangChainRole(role MessageRole) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func init() {
	RegisterClient("openai", NewLangChainClient)
}
