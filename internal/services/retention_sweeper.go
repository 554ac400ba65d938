package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetentionPolicy 保留策略
type RetentionPolicy struct {
	Interval           time.Duration
	ConversationMaxAge time.Duration
	PerUserCap         int
	TranscriptMaxAge   time.Duration
}

// SweepResult 单次清理结果
type SweepResult struct {
	Conversations int `json:"conversations"`
	Transcripts   int `json:"transcripts"`
}

// RetentionSweeper 定期清理过期会话和学习记录
type RetentionSweeper struct {
	conversations *ConversationStore
	transcripts   *TranscriptStore
	policy        RetentionPolicy
	logger        *zap.Logger
	now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionSweeper 创建清理器
func NewRetentionSweeper(conversations *ConversationStore, transcripts *TranscriptStore, policy RetentionPolicy, logger *zap.Logger) *RetentionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Interval <= 0 {
		policy.Interval = time.Hour
	}
	return &RetentionSweeper{
		conversations: conversations,
		transcripts:   transcripts,
		policy:        policy,
		logger:        logger,
		now:           time.Now,
	}
}

// Sweep 执行一次清理
func (s *RetentionSweeper) Sweep(now time.Time) SweepResult {
	var res SweepResult
	if s.policy.ConversationMaxAge > 0 || s.policy.PerUserCap > 0 {
		cutoff := time.Time{}
		if s.policy.ConversationMaxAge > 0 {
			cutoff = now.Add(-s.policy.ConversationMaxAge)
		}
		res.Conversations = s.conversations.EvictStale(cutoff, s.policy.PerUserCap)
	}
	if s.transcripts != nil && s.policy.TranscriptMaxAge > 0 {
		res.Transcripts = s.transcripts.Prune(now.Add(-s.policy.TranscriptMaxAge))
	}

	retentionEvictionsTotal.WithLabelValues("conversation").Add(float64(res.Conversations))
	retentionEvictionsTotal.WithLabelValues("transcript").Add(float64(res.Transcripts))
	activeConversations.Set(float64(s.conversations.Len()))

	if res.Conversations > 0 || res.Transcripts > 0 {
		s.logger.Info("Retention sweep finished",
			zap.Int("conversations_removed", res.Conversations),
			zap.Int("transcripts_removed", res.Transcripts),
		)
	}
	return res
}

// Start 启动后台清理，重复调用无效
func (s *RetentionSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.policy.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.now())
			}
		}
	}(s.done)

	s.logger.Info("Retention sweeper started", zap.Duration("interval", s.policy.Interval))
}

// Stop 停止后台清理并等待退出
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Retention sweeper stopped")
}
