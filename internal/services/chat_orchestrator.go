package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/studybuddy/tutor-backend/internal/errors"
	"github.com/studybuddy/tutor-backend/internal/models"
)

// 固定回复
const (
	FallbackReply     = "Hmm, I'm having a technical hiccup right now. While I sort this out, can you tell me what you were thinking about that problem? What approach were you considering?"
	InputTooLongReply = "That's quite a lot to work with! Can you break that down and ask me about just one part of your problem? What's the main thing you're stuck on?"
	OffTopicReply     = "I'm here to help you discover answers in mathematics! What specific math problem or concept would you like to explore? What are you curious about?"
	EmptyModelReply   = "What do you think we should try next? What comes to mind?"
)

// 软拒绝原因
const (
	ReasonInputTooLong = "input_too_long"
	ReasonOffTopic     = "off_topic"
)

const publishTimeout = 10 * time.Second

// TranscriptPublisher 学习记录事件发布
type TranscriptPublisher interface {
	Publish(ctx context.Context, entry models.TranscriptEntry) error
}

// ChatRequest 对话请求
type ChatRequest struct {
	Message        string
	Subject        string
	YearLevel      int
	Curriculum     string
	UserID         string
	SelectedTopics []string
	ResetContext   bool
}

// TokenBreakdown 本次请求的token明细
type TokenBreakdown struct {
	Used              int `json:"used"`
	Limit             int `json:"limit"`
	ThisRequest       int `json:"thisRequest"`
	Input             int `json:"input"`
	Output            int `json:"output"`
	ConversationTotal int `json:"conversationTotal"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	Response           string         `json:"response"`
	Subject            string         `json:"subject"`
	DetectedTopic      string         `json:"detectedTopic,omitempty"`
	YearLevel          int            `json:"yearLevel"`
	Curriculum         string         `json:"curriculum"`
	ConversationLength int            `json:"conversationLength"`
	ConversationAge    int            `json:"conversationAge"`
	ConversationID     string         `json:"conversationId,omitempty"`
	Fallback           bool           `json:"fallback"`
	Reason             string         `json:"reason,omitempty"`
	Tokens             TokenBreakdown `json:"tokens"`
}

// ChatDefaults 请求字段缺省值
type ChatDefaults struct {
	Subject    string
	YearLevel  int
	Curriculum string
	UserID     string
}

// OrchestratorOptions 编排参数
type OrchestratorOptions struct {
	InputTokenCeiling int
	MaxReplyTokens    int
	Defaults          ChatDefaults
}

// OrchestratorDeps 编排器依赖
type OrchestratorDeps struct {
	Classifier  *TopicClassifier
	Meter       *TokenMeter
	Resolver    *SessionResolver
	Store       *ConversationStore
	Compactor   *ContextCompactor
	Prompts     *PromptBuilder
	Generator   ReplyGenerator
	Transcripts *TranscriptStore
	Publisher   TranscriptPublisher
	Logger      *zap.Logger
}

// generationOutcome 生成结果，失败时 err 非空
type generationOutcome struct {
	reply *Reply
	err   error
}

// ChatOrchestrator 对话编排：校验、解析会话、构建提示、生成、持久化
type ChatOrchestrator struct {
	deps    OrchestratorDeps
	opts    OrchestratorOptions
	logger  *zap.Logger
	now     func() time.Time
	pending sync.WaitGroup
}

// NewChatOrchestrator 创建对话编排器
func NewChatOrchestrator(deps OrchestratorDeps, opts OrchestratorOptions) *ChatOrchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InputTokenCeiling <= 0 {
		opts.InputTokenCeiling = 1000
	}
	if opts.MaxReplyTokens <= 0 {
		opts.MaxReplyTokens = 180
	}
	if opts.Defaults.Subject == "" {
		opts.Defaults.Subject = models.DefaultTopic
	}
	if opts.Defaults.YearLevel <= 0 {
		opts.Defaults.YearLevel = 7
	}
	if opts.Defaults.Curriculum == "" {
		opts.Defaults.Curriculum = "NSW"
	}
	if opts.Defaults.UserID == "" {
		opts.Defaults.UserID = "anonymous"
	}
	return &ChatOrchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Defaults 请求缺省值
func (o *ChatOrchestrator) Defaults() ChatDefaults {
	return o.opts.Defaults
}

// Handle 处理一次对话请求
func (o *ChatOrchestrator) Handle(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req = o.applyDefaults(req)

	if strings.TrimSpace(req.Message) == "" {
		chatRequestsTotal.WithLabelValues(OutcomeInvalidRequest).Inc()
		return nil, apperrors.NewValidationError("Message cannot be empty")
	}

	unlock := o.deps.Resolver.LockUser(req.UserID)
	defer unlock()

	inputTokens := EstimateTokens(req.Message)
	if inputTokens > o.opts.InputTokenCeiling {
		chatRequestsTotal.WithLabelValues(OutcomeInputTooLong).Inc()
		return o.softDecline(req, InputTooLongReply, ReasonInputTooLong), nil
	}

	if !o.deps.Meter.CheckAllowed(req.UserID) {
		chatRequestsTotal.WithLabelValues(OutcomeTokenLimit).Inc()
		usage := o.deps.Meter.GetUsage(req.UserID)
		o.logger.Info("Token limit reached",
			zap.String("user_id", req.UserID),
			zap.Int("used", usage.Used),
			zap.Int("limit", usage.Limit),
		)
		return nil, apperrors.NewTokenLimitError(usage.Used, usage.Limit).WithDetails(map[string]int{
			"tokensUsed":  usage.Used,
			"tokensLimit": usage.Limit,
		})
	}

	if !o.deps.Classifier.IsOnTopic(req.Message) {
		chatRequestsTotal.WithLabelValues(OutcomeOffTopic).Inc()
		return o.softDecline(req, OffTopicReply, ReasonOffTopic), nil
	}

	// Resolve
	res := o.deps.Resolver.Resolve(ResolveRequest{
		UserID:       req.UserID,
		Message:      req.Message,
		YearLevel:    req.YearLevel,
		Curriculum:   req.Curriculum,
		ResetContext: req.ResetContext,
	})
	rec := res.Record
	rec.AppendTurn(models.Turn{Role: models.RoleUser, Content: req.Message, Timestamp: o.now()})

	// BuildPrompt
	prompt := o.deps.Prompts.Build(PromptRequest{
		Topic:          rec.Topic,
		YearLevel:      req.YearLevel,
		Curriculum:     req.Curriculum,
		SelectedTopics: req.SelectedTopics,
		Message:        req.Message,
	})
	compaction := o.deps.Compactor.Compact(rec.Messages)

	// Generate
	outcome := o.generate(ctx, GenerationRequest{
		SystemPrompt: prompt,
		Messages:     o.deps.Compactor.ForModel(compaction),
		MaxTokens:    o.opts.MaxReplyTokens,
		Topic:        rec.Topic,
	})

	// Persist
	text, input, output, fallback := o.settle(outcome, inputTokens)
	charge := input + output
	rec.TotalTokensUsed += charge
	rec.AppendTurn(models.Turn{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: o.now(),
		Fallback:  fallback,
	})
	o.deps.Resolver.Commit(res, rec)

	usage, err := o.deps.Meter.Record(req.UserID, charge)
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "Failed to record token usage").WithCause(err)
	}
	tokensChargedTotal.Add(float64(charge))
	activeConversations.Set(float64(o.deps.Store.Len()))

	if fallback {
		chatRequestsTotal.WithLabelValues(OutcomeFallback).Inc()
	} else {
		chatRequestsTotal.WithLabelValues(OutcomeOK).Inc()
		o.recordTranscript(req, res.DetectedTopic, rec, text, charge)
	}

	o.logger.Info("Chat handled",
		zap.String("user_id", req.UserID),
		zap.String("conversation_id", rec.Key.String()),
		zap.String("topic", rec.Topic),
		zap.Bool("created", res.Created),
		zap.Bool("migrated", res.Migrated),
		zap.Bool("fallback", fallback),
		zap.Int("tokens", charge),
		zap.Int("messages", len(rec.Messages)),
	)

	return &ChatResponse{
		Response:           text,
		Subject:            rec.Topic,
		DetectedTopic:      res.DetectedTopic,
		YearLevel:          req.YearLevel,
		Curriculum:         req.Curriculum,
		ConversationLength: len(rec.Messages),
		ConversationAge:    rec.AgeMinutes(o.now()),
		ConversationID:     rec.Key.String(),
		Fallback:           fallback,
		Tokens: TokenBreakdown{
			Used:              usage.Used,
			Limit:             usage.Limit,
			ThisRequest:       charge,
			Input:             input,
			Output:            output,
			ConversationTotal: rec.TotalTokensUsed,
		},
	}, nil
}

// Drain 等待未完成的事件发布
func (o *ChatOrchestrator) Drain() {
	o.pending.Wait()
}

func (o *ChatOrchestrator) applyDefaults(req ChatRequest) ChatRequest {
	d := o.opts.Defaults
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = d.UserID
	}
	if req.Subject == "" {
		req.Subject = d.Subject
	}
	if req.YearLevel <= 0 {
		req.YearLevel = d.YearLevel
	}
	if req.Curriculum == "" {
		req.Curriculum = d.Curriculum
	}
	return req
}

func (o *ChatOrchestrator) generate(ctx context.Context, req GenerationRequest) generationOutcome {
	reply, err := o.deps.Generator.Generate(ctx, req)
	if err == nil && reply == nil {
		err = apperrors.NewExternalError(apperrors.ErrCodeGenerationFailed, "generator returned no reply")
	}
	return generationOutcome{reply: reply, err: err}
}

// settle 根据生成结果确定回复文本和计费
func (o *ChatOrchestrator) settle(outcome generationOutcome, inputEstimate int) (text string, input, output int, fallback bool) {
	if outcome.err != nil {
		o.logger.Warn("Falling back after generation failure", zap.Error(outcome.err))
		return FallbackReply, inputEstimate, 0, true
	}

	text = outcome.reply.Text
	if strings.TrimSpace(text) == "" {
		text = EmptyModelReply
	}
	input = outcome.reply.InputTokens
	if input <= 0 {
		input = inputEstimate
	}
	output = outcome.reply.OutputTokens
	if output <= 0 {
		output = EstimateTokens(text)
	}
	return text, input, output, false
}

func (o *ChatOrchestrator) recordTranscript(req ChatRequest, detectedTopic string, rec models.ConversationRecord, reply string, charge int) {
	if o.deps.Transcripts == nil {
		return
	}
	entry := models.TranscriptEntry{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Timestamp: o.now(),
		Message:   req.Message,
		Response:  reply,
		Metadata: models.TranscriptMetadata{
			Subject:         rec.Topic,
			DetectedTopic:   detectedTopic,
			YearLevel:       req.YearLevel,
			Curriculum:      req.Curriculum,
			TokensUsed:      charge,
			ConversationKey: rec.Key.String(),
		},
	}
	o.deps.Transcripts.Append(entry)

	if o.deps.Publisher == nil {
		return
	}
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := o.deps.Publisher.Publish(ctx, entry); err != nil {
			o.logger.Warn("Failed to publish transcript",
				zap.String("transcript_id", entry.ID),
				zap.Error(err),
			)
		}
	}()
}

func (o *ChatOrchestrator) softDecline(req ChatRequest, reply, reason string) *ChatResponse {
	usage := o.deps.Meter.GetUsage(req.UserID)
	return &ChatResponse{
		Response:   reply,
		Subject:    req.Subject,
		YearLevel:  req.YearLevel,
		Curriculum: req.Curriculum,
		Reason:     reason,
		Tokens: TokenBreakdown{
			Used:  usage.Used,
			Limit: usage.Limit,
		},
	}
}
