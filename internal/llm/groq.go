package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultGroqEndpoint Groq的OpenAI兼容聊天接口
	DefaultGroqEndpoint = "https://api.groq.com/openai/v1/chat/completions"
)

// GroqClient OpenAI兼容的聊天补全客户端（默认指向Groq）
// 不做任何自动重试，失败直接以类型化错误返回
type GroqClient struct {
	client      *openai.Client // OpenAI兼容API客户端
	model       string         // 模型名称
	maxTokens   int            // 最大生成Token数
	temperature float32        // 温度参数
}

// NewGroqClient 创建新的Groq客户端
func NewGroqClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = DefaultGroqEndpoint
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURLFromEndpoint(endpoint)
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &GroqClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name 返回模型名称
func (c *GroqClient) Name() string {
	return c.model
}

// Chat 进行多轮对话
func (c *GroqClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	maxTokens, temp := resolveChatOptions(c.maxTokens, c.temperature, options)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temp,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	// 缺少 choices[0].message.content 视为响应结构异常
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewLLMError(ErrCodeMalformedResponse, ErrMsgMalformedResponse)
	}

	content := resp.Choices[0].Message.Content
	result := &Response{
		Text:       content,
		Messages:   []Message{{Role: RoleAssistant, Content: content}},
		ModelName:  c.model,
		TokenCount: resp.Usage.TotalTokens,
		FinishTime: time.Now(),
	}
	if resp.Model != "" {
		result.ModelName = resp.Model
	}
	return result, nil
}

// mapOpenAIError 把SDK返回的错误转换为 LLMError
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewHTTPError(apiErr.HTTPStatusCode, "API error: "+apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewHTTPError(reqErr.HTTPStatusCode, reqErr.Error())
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewLLMError(ErrCodeDecodeError, fmt.Sprintf("failed to parse response: %v", err))
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return NewLLMError(ErrCodeTimeout, fmt.Sprintf("request failed: %v", err))
	}

	return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
}

// 在包初始化时注册Groq客户端
func init() {
	RegisterClient("groq", NewGroqClient)
}
