package services

import (
	"strings"

	"github.com/studybuddy/tutor-backend/internal/models"
)

const (
	summaryMaxTurns   = 4
	summaryTurnLength = 40
	summaryMinUserLen = 10
)

// Compaction 压缩结果
type Compaction struct {
	Summary string
	Trimmed []models.Turn
}

// ContextCompactor 将较早的对话压缩成摘要，控制发给模型的上下文长度
type ContextCompactor struct {
	threshold int
	keep      int
}

// NewContextCompactor 创建上下文压缩器，消息数超过 threshold 时只保留最后 keep 条
func NewContextCompactor(threshold, keep int) *ContextCompactor {
	if keep <= 0 {
		keep = 10
	}
	if threshold < keep {
		threshold = keep
	}
	return &ContextCompactor{threshold: threshold, keep: keep}
}

// Compact 压缩历史消息
func (c *ContextCompactor) Compact(messages []models.Turn) Compaction {
	if len(messages) <= c.threshold {
		return Compaction{Trimmed: messages}
	}

	cut := len(messages) - c.keep
	return Compaction{
		Summary: summarize(messages[:cut]),
		Trimmed: messages[cut:],
	}
}

// ForModel 生成发送给模型的消息列表
func (c *ContextCompactor) ForModel(comp Compaction) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(comp.Trimmed)+1)
	if comp.Summary != "" {
		out = append(out, models.ChatMessage{
			Role:    models.RoleUser,
			Content: "[Context: " + comp.Summary + "]",
		})
	}
	for _, t := range comp.Trimmed {
		out = append(out, models.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return out
}

func summarize(turns []models.Turn) string {
	parts := make([]string, 0, summaryMaxTurns)
	for _, t := range turns {
		if len(parts) == summaryMaxTurns {
			break
		}
		switch {
		case t.Role == models.RoleAssistant:
			parts = append(parts, "I guided: "+truncateRunes(t.Content, summaryTurnLength))
		case t.Role == models.RoleUser && len([]rune(t.Content)) > summaryMinUserLen:
			parts = append(parts, "Student asked: "+truncateRunes(t.Content, summaryTurnLength))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Earlier in our conversation: " + strings.Join(parts, ". ") + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
