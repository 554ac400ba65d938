package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// UsageMirror 用量镜像，接收每次变更后的副本，不参与读取
type UsageMirror interface {
	Store(ctx context.Context, usage models.TokenUsage) error
	Delete(ctx context.Context, userID string) error
}

const mirrorTimeout = 2 * time.Second

// TokenMeter 按用户统计token用量，内存数据为准
type TokenMeter struct {
	mu           sync.RWMutex
	usage        map[string]models.TokenUsage
	defaultLimit int
	mirror       UsageMirror
	logger       *zap.Logger

	// 镜像写入串行执行，每次写入当时的最新用量
	mirrorMu sync.Mutex
	pending  sync.WaitGroup
}

// NewTokenMeter 创建token计量器
func NewTokenMeter(defaultLimit int, mirror UsageMirror, logger *zap.Logger) *TokenMeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMeter{
		usage:        make(map[string]models.TokenUsage),
		defaultLimit: defaultLimit,
		mirror:       mirror,
		logger:       logger,
	}
}

// EstimateTokens 粗略估算：ceil(len/4)
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// SetDefaultLimit 调整新用户的默认额度
func (m *TokenMeter) SetDefaultLimit(limit int) {
	m.mu.Lock()
	m.defaultLimit = limit
	m.mu.Unlock()
}

// DefaultLimit 当前默认额度
func (m *TokenMeter) DefaultLimit() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultLimit
}

// GetUsage 获取用户用量，不存在时创建零记录
func (m *TokenMeter) GetUsage(userID string) models.TokenUsage {
	m.mu.RLock()
	u, ok := m.usage[userID]
	m.mu.RUnlock()
	if ok {
		return u
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usage[userID]; ok {
		return u
	}
	u = models.TokenUsage{UserID: userID, Limit: m.defaultLimit}
	m.usage[userID] = u
	return u
}

// CheckAllowed 用量未达上限时返回true
func (m *TokenMeter) CheckAllowed(userID string) bool {
	u := m.GetUsage(userID)
	return u.Used < u.Limit
}

// Record 累加用量
func (m *TokenMeter) Record(userID string, amount int) (models.TokenUsage, error) {
	if amount < 0 {
		return models.TokenUsage{}, fmt.Errorf("token amount must not be negative: %d", amount)
	}

	m.mu.Lock()
	u, ok := m.usage[userID]
	if !ok {
		u = models.TokenUsage{UserID: userID, Limit: m.defaultLimit}
	}
	u.Used += amount
	m.usage[userID] = u
	m.mu.Unlock()

	m.syncMirror(userID)
	return u, nil
}

// Reset 删除用户用量记录
func (m *TokenMeter) Reset(userID string) bool {
	m.mu.Lock()
	_, existed := m.usage[userID]
	delete(m.usage, userID)
	m.mu.Unlock()

	if existed {
		m.syncMirror(userID)
	}
	return existed
}

// Drain 等待未完成的镜像写入
func (m *TokenMeter) Drain() {
	m.pending.Wait()
}

// syncMirror 在后台把用户当前用量同步到镜像，记录不存在时删除镜像
func (m *TokenMeter) syncMirror(userID string) {
	if m.mirror == nil {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.mirrorMu.Lock()
		defer m.mirrorMu.Unlock()

		m.mu.RLock()
		u, ok := m.usage[userID]
		m.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if !ok {
			if err := m.mirror.Delete(ctx, userID); err != nil {
				m.logger.Warn("Failed to delete mirrored usage", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if err := m.mirror.Store(ctx, u); err != nil {
			m.logger.Warn("Failed to mirror token usage", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}
