package services

import (
	"sync"
	"time"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// TranscriptStore 只追加的学习记录
type TranscriptStore struct {
	mu      sync.RWMutex
	entries map[string][]models.TranscriptEntry
	now     func() time.Time
}

// NewTranscriptStore 创建学习记录存储
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		entries: make(map[string][]models.TranscriptEntry),
		now:     time.Now,
	}
}

// Append 追加一条记录
func (s *TranscriptStore) Append(entry models.TranscriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[entry.UserID]
	next := make([]models.TranscriptEntry, len(list), len(list)+1)
	copy(next, list)
	s.entries[entry.UserID] = append(next, entry)
}

// List 按时间倒序分页返回，total 为该用户记录总数
func (s *TranscriptStore) List(userID string, limit, offset int) ([]models.TranscriptEntry, int) {
	s.mu.RLock()
	list := s.entries[userID]
	s.mu.RUnlock()

	total := len(list)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []models.TranscriptEntry{}, total
	}

	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]models.TranscriptEntry, 0, end-offset)
	for i := total - 1 - offset; i >= total-end; i-- {
		out = append(out, list[i])
	}
	return out, total
}

// Stats 汇总用户学习记录
func (s *TranscriptStore) Stats(userID string) models.TranscriptStats {
	s.mu.RLock()
	list := s.entries[userID]
	s.mu.RUnlock()

	weekAgo := s.now().Add(-7 * 24 * time.Hour)
	stats := models.TranscriptStats{
		TotalTranscripts: len(list),
		SubjectCounts:    make(map[string]int),
		TopicCounts:      make(map[string]int),
	}
	for _, e := range list {
		if e.Timestamp.After(weekAgo) {
			stats.Last7DaysCount++
		}
		stats.SubjectCounts[e.Metadata.Subject]++
		stats.TopicCounts[e.Metadata.DetectedTopic]++
	}
	return stats
}

// Prune 删除 cutoff 之前的记录，清空的用户整体移除
func (s *TranscriptStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, list := range s.entries {
		kept := make([]models.TranscriptEntry, 0, len(list))
		for _, e := range list {
			if e.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.entries, userID)
		} else if len(kept) != len(list) {
			s.entries[userID] = kept
		}
	}
	return removed
}

// Users 当前有记录的用户数
func (s *TranscriptStore) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
