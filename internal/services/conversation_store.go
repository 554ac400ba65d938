package services

import (
	"sort"
	"sync"
	"time"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// ConversationStats 会话统计，/debug 与健康检查使用
type ConversationStats struct {
	TotalConversations int            `json:"totalConversations"`
	TotalMessages      int            `json:"totalMessages"`
	TotalTokens        int            `json:"totalTokens"`
	Subjects           map[string]int `json:"subjects"`
}

// ConversationStore 内存会话存储，对外只交出深拷贝
type ConversationStore struct {
	mu      sync.RWMutex
	records map[models.ConversationKey]models.ConversationRecord
}

// NewConversationStore 创建会话存储
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		records: make(map[models.ConversationKey]models.ConversationRecord),
	}
}

// Get 按键读取会话
func (s *ConversationStore) Get(key models.ConversationKey) (models.ConversationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return models.ConversationRecord{}, false
	}
	return rec.Clone(), true
}

// Save 写回会话，Topic 始终与键保持一致
func (s *ConversationStore) Save(rec models.ConversationRecord) {
	rec = rec.Clone()
	rec.Topic = rec.Key.Topic
	s.mu.Lock()
	s.records[rec.Key] = rec
	s.mu.Unlock()
}

// Delete 删除会话，返回是否存在
func (s *ConversationStore) Delete(key models.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	delete(s.records, key)
	return ok
}

// Rekey 将会话从旧键迁移到新键
func (s *ConversationStore) Rekey(oldKey, newKey models.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[oldKey]
	if !ok {
		return false
	}
	delete(s.records, oldKey)
	rec.Key = newKey
	rec.Topic = newKey.Topic
	s.records[newKey] = rec
	return true
}

// MostRecent 返回用户最近活跃的会话
func (s *ConversationStore) MostRecent(userID string) (models.ConversationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best models.ConversationRecord
	found := false
	for key, rec := range s.records {
		if key.UserID != userID {
			continue
		}
		if !found || newerThan(rec, best) {
			best = rec
			found = true
		}
	}
	if !found {
		return models.ConversationRecord{}, false
	}
	return best.Clone(), true
}

// ListByUser 按最近活跃倒序列出用户的会话
func (s *ConversationStore) ListByUser(userID string) []models.ConversationRecord {
	s.mu.RLock()
	list := make([]models.ConversationRecord, 0)
	for key, rec := range s.records {
		if key.UserID == userID {
			list = append(list, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(list)
	return list
}

// Len 会话总数
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats 汇总统计
func (s *ConversationStore) Stats() ConversationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ConversationStats{
		TotalConversations: len(s.records),
		Subjects:           make(map[string]int),
	}
	for _, rec := range s.records {
		stats.TotalMessages += len(rec.Messages)
		stats.TotalTokens += rec.TotalTokensUsed
		stats.Subjects[rec.Topic]++
	}
	return stats
}

// EvictStale 删除 cutoff 之前不活跃的会话，并且每个用户只保留最近的 perUserCap 个
func (s *ConversationStore) EvictStale(cutoff time.Time, perUserCap int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	byUser := make(map[string][]models.ConversationRecord)
	for key, rec := range s.records {
		if rec.LastActiveAt.Before(cutoff) {
			delete(s.records, key)
			removed++
			continue
		}
		byUser[key.UserID] = append(byUser[key.UserID], rec)
	}

	if perUserCap <= 0 {
		return removed
	}
	for _, list := range byUser {
		if len(list) <= perUserCap {
			continue
		}
		sortNewestFirst(list)
		for _, rec := range list[perUserCap:] {
			delete(s.records, rec.Key)
			removed++
		}
	}
	return removed
}

func newerThan(a, b models.ConversationRecord) bool {
	if !a.LastActiveAt.Equal(b.LastActiveAt) {
		return a.LastActiveAt.After(b.LastActiveAt)
	}
	return a.Key.String() < b.Key.String()
}

func sortNewestFirst(list []models.ConversationRecord) {
	sort.Slice(list, func(i, j int) bool {
		return newerThan(list[i], list[j])
	})
}
