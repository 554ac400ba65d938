package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studybuddy/tutor-backend/internal/models"
)

const usageKeyPrefix = "tutor:usage:"

// RedisUsageMirror 将用量写入Redis哈希，供外部看板读取
type RedisUsageMirror struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisUsageMirror 创建Redis用量镜像
func NewRedisUsageMirror(client redis.Cmdable, ttl time.Duration) *RedisUsageMirror {
	return &RedisUsageMirror{client: client, ttl: ttl}
}

// UsageKey 用户用量的Redis键
func UsageKey(userID string) string {
	return usageKeyPrefix + userID
}

// Store 写入用量
func (m *RedisUsageMirror) Store(ctx context.Context, usage models.TokenUsage) error {
	key := UsageKey(usage.UserID)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "used", usage.Used, "limit", usage.Limit)
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror usage for %s: %w", usage.UserID, err)
	}
	return nil
}

// Delete 删除用量
func (m *RedisUsageMirror) Delete(ctx context.Context, userID string) error {
	if err := m.client.Del(ctx, UsageKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete mirrored usage for %s: %w", userID, err)
	}
	return nil
}
