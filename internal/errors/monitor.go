package errors

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_errors_total",
			Help: "Total number of errors by code, type and endpoint",
		},
		[]string{"code", "type", "endpoint"},
	)
)

// ErrorMonitor 错误监控器
type ErrorMonitor struct {
	stats      map[string]*ErrorStats
	statsMutex sync.RWMutex
}

// ErrorStats 错误统计信息
type ErrorStats struct {
	Code      string    `json:"code"`
	Type      string    `json:"type"`
	Endpoint  string    `json:"endpoint"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NewErrorMonitor 创建错误监控器
func NewErrorMonitor() *ErrorMonitor {
	return &ErrorMonitor{
		stats: make(map[string]*ErrorStats),
	}
}

// RecordError 记录错误
func (em *ErrorMonitor) RecordError(appErr *AppError, endpoint string) {
	if appErr == nil {
		return
	}

	errorCounter.WithLabelValues(string(appErr.Code), appErr.Type.String(), endpoint).Inc()

	em.statsMutex.Lock()
	defer em.statsMutex.Unlock()

	key := string(appErr.Code) + ":" + endpoint
	now := time.Now()
	stats, exists := em.stats[key]
	if !exists {
		stats = &ErrorStats{
			Code:      string(appErr.Code),
			Type:      appErr.Type.String(),
			Endpoint:  endpoint,
			FirstSeen: now,
		}
		em.stats[key] = stats
	}
	stats.Count++
	stats.LastSeen = now
}

// GetTopErrors 获取最常见的错误
func (em *ErrorMonitor) GetTopErrors(limit int) []ErrorStats {
	em.statsMutex.RLock()
	defer em.statsMutex.RUnlock()

	list := make([]ErrorStats, 0, len(em.stats))
	for _, stats := range em.stats {
		list = append(list, *stats)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Code < list[j].Code
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
