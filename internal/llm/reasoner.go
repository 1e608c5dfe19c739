package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// DefaultSystemPrompt 默认系统提示词
const DefaultSystemPrompt = "You are a reasoning assistant that helps evaluate insurance claims based on provided policy clauses. Respond with clear, concise explanations in plain text format only."

// DefaultPolicyTemplate 默认条款分析提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Clauses}} - 检索到的条款，按换行拼接
const DefaultPolicyTemplate = `
You are a policy analysis assistant that helps determine whether specific insurance queries are covered under a given health insurance policy.

Given the user's question and relevant policy clauses, your job is to:
1. Focus only on the content provided in the policy clauses — do not make assumptions.
2. Identify the single *most relevant* clause that directly answers the query.
3. Provide a clear and concise explanation based on that clause only.

Important: Respond with ONLY the explanation text. Do not use JSON format or any special formatting.

User Question:
{{.Question}}

Relevant Policy Clauses:
{{.Clauses}}

Explanation:`

// ReasonerConfig 条款推理配置
type ReasonerConfig struct {
	SystemPrompt string        // 系统提示词
	Template     string        // 用户提示词模板
	MaxTokens    int           // 最大Token数
	Temperature  float32       // 温度参数
	RequestDelay time.Duration // 每次调用前的固定等待，用于规避上游限流
}

// DefaultReasonerConfig 默认推理配置
func DefaultReasonerConfig() *ReasonerConfig {
	return &ReasonerConfig{
		SystemPrompt: DefaultSystemPrompt,
		Template:     DefaultPolicyTemplate,
		MaxTokens:    512,
		Temperature:  0.3,
		RequestDelay: 3 * time.Second,
	}
}

// ReasonerOption 推理配置选项函数类型
type ReasonerOption func(*ReasonerConfig)

// WithReasonerMaxTokens 设置最大Token数
func WithReasonerMaxTokens(tokens int) ReasonerOption {
	return func(c *ReasonerConfig) {
		c.MaxTokens = tokens
	}
}

// WithReasonerTemperature 设置温度参数
func WithReasonerTemperature(temp float32) ReasonerOption {
	return func(c *ReasonerConfig) {
		c.Temperature = temp
	}
}

// WithRequestDelay 设置调用前的等待时间
func WithRequestDelay(d time.Duration) ReasonerOption {
	return func(c *ReasonerConfig) {
		c.RequestDelay = d
	}
}

// Reasoner 基于检索条款生成解释
type Reasoner struct {
	client Client          // 大模型客户端
	config *ReasonerConfig // 配置
}

// NewReasoner 创建新的条款推理服务
func NewReasoner(client Client, opts ...ReasonerOption) *Reasoner {
	cfg := DefaultReasonerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Reasoner{
		client: client,
		config: cfg,
	}
}

// Explain 根据问题和相关条款生成纯文本解释
// 返回的错误均为 LLMError，调用方可以用 FallbackAnswer 决定兜底文案
func (r *Reasoner) Explain(ctx context.Context, question string, clauses []string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	cfg := r.config

	// 固定延迟，阻塞当前请求
	if err := wait(ctx, cfg.RequestDelay); err != nil {
		return "", NewLLMError(ErrCodeTimeout, err.Error())
	}

	messages := []Message{
		{Role: RoleSystem, Content: cfg.SystemPrompt},
		{Role: RoleUser, Content: buildPrompt(cfg.Template, question, clauses)},
	}

	resp, err := r.client.Chat(ctx, messages,
		WithChatMaxTokens(cfg.MaxTokens),
		WithChatTemperature(cfg.Temperature),
	)
	if err != nil {
		return "", WrapError(err, ErrCodeUnknown)
	}

	return unwrapExplanation(resp.Text), nil
}

// buildPrompt 构建用户提示词
func buildPrompt(template, question string, clauses []string) string {
	prompt := template
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	prompt = strings.ReplaceAll(prompt, "{{.Clauses}}", strings.Join(clauses, "\n"))
	return prompt
}

// unwrapExplanation 模型偶尔仍会返回JSON对象，此时取出explanation字段
func unwrapExplanation(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "{") || !strings.HasSuffix(content, "}") {
		return content
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return content
	}
	if explanation, ok := parsed["explanation"].(string); ok {
		return explanation
	}
	return content
}

// wait 阻塞等待指定时间，上下文取消时提前返回
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
