package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// GenerationRequest 回复生成请求
type GenerationRequest struct {
	SystemPrompt string
	Messages     []models.ChatMessage
	MaxTokens    int
	// Topic 仅供离线生成器使用
	Topic string
}

// Reply 生成结果，token数为0表示服务方未返回
type Reply struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// ReplyGenerator 回复生成能力
type ReplyGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*Reply, error)
	Model() string
	Configured() bool
}

// OpenAIGenerator 基于OpenAI兼容接口的生成器
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIGenerator 创建OpenAI生成器
func NewOpenAIGenerator(apiKey, baseURL, model string, temperature float32) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: temperature,
	}
}

// Generate 调用 chat completions
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerationRequest) (*Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   req.MaxTokens,
		Temperature: g.temperature,
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	reply := &Reply{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}
	if len(resp.Choices) > 0 {
		reply.Text = resp.Choices[0].Message.Content
	}
	return reply, nil
}

// Model 模型名
func (g *OpenAIGenerator) Model() string { return g.model }

// Configured 已配置API Key
func (g *OpenAIGenerator) Configured() bool { return true }

// OfflineGenerator 未配置API Key时使用，返回固定的引导式问题
type OfflineGenerator struct{}

// NewOfflineGenerator 创建离线生成器
func NewOfflineGenerator() *OfflineGenerator {
	return &OfflineGenerator{}
}

// Generate 返回固定回复
func (g *OfflineGenerator) Generate(ctx context.Context, req GenerationRequest) (*Reply, error) {
	topic := req.Topic
	if topic == "" {
		topic = models.DefaultTopic
	}
	return &Reply{
		Text:  fmt.Sprintf("Great question about %s! What do you think might be the first step? What comes to mind when you look at this problem?", topic),
		Model: "offline",
	}, nil
}

// Model 模型名
func (g *OfflineGenerator) Model() string { return "offline" }

// Configured 离线生成器视为未配置
func (g *OfflineGenerator) Configured() bool { return false }

// GuardedGenerator 为生成调用加上超时与熔断
type GuardedGenerator struct {
	inner   ReplyGenerator
	breaker *CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewGuardedGenerator 创建带保护的生成器
func NewGuardedGenerator(inner ReplyGenerator, breaker *CircuitBreaker, timeout time.Duration, logger *zap.Logger) *GuardedGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedGenerator{inner: inner, breaker: breaker, timeout: timeout, logger: logger}
}

// Generate 在超时和熔断保护下调用内部生成器
func (g *GuardedGenerator) Generate(ctx context.Context, req GenerationRequest) (*Reply, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	var reply *Reply
	err := g.breaker.Call(func() error {
		var genErr error
		reply, genErr = g.inner.Generate(ctx, req)
		return genErr
	})
	generationDuration.WithLabelValues(g.inner.Model()).Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, ErrCircuitOpen):
			reason = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		}
		generationFailuresTotal.WithLabelValues(reason).Inc()
		g.logger.Warn("Reply generation failed", zap.String("reason", reason), zap.Error(err))
		return nil, err
	}
	return reply, nil
}

// Model 模型名
func (g *GuardedGenerator) Model() string { return g.inner.Model() }

// Configured 内部生成器是否已配置
func (g *GuardedGenerator) Configured() bool { return g.inner.Configured() }

// Breaker 返回熔断器，/debug 使用
func (g *GuardedGenerator) Breaker() *CircuitBreaker { return g.breaker }
