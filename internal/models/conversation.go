package models

import (
	"fmt"
	"math"
	"time"
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTopic 未识别主题时使用的通用标签
const DefaultTopic = "Mathematics"

// ConversationKey 会话键 (userId, topic, yearLevel)
type ConversationKey struct {
	UserID    string `json:"userId"`
	Topic     string `json:"topic"`
	YearLevel int    `json:"yearLevel"`
}

// String 返回对外使用的会话ID
func (k ConversationKey) String() string {
	return fmt.Sprintf("%s_%s_%d", k.UserID, k.Topic, k.YearLevel)
}

// Turn 单条对话消息
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// ConversationRecord 会话记录
type ConversationRecord struct {
	Key             ConversationKey `json:"key"`
	Topic           string          `json:"topic"`
	YearLevel       int             `json:"yearLevel"`
	Curriculum      string          `json:"curriculum"`
	Messages        []Turn          `json:"messages"`
	TotalTokensUsed int             `json:"totalTokensUsed"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastActiveAt    time.Time       `json:"lastActiveAt"`
}

// Clone 深拷贝，调用方修改副本不会影响存储中的记录
func (r ConversationRecord) Clone() ConversationRecord {
	out := r
	if r.Messages != nil {
		out.Messages = make([]Turn, len(r.Messages))
		copy(out.Messages, r.Messages)
	}
	return out
}

// AppendTurn 追加一条消息并刷新活跃时间
func (r *ConversationRecord) AppendTurn(turn Turn) {
	r.Messages = append(r.Messages, turn)
	if turn.Timestamp.After(r.LastActiveAt) {
		r.LastActiveAt = turn.Timestamp
	}
}

// AgeMinutes 会话创建至今的分钟数（四舍五入）
func (r ConversationRecord) AgeMinutes(now time.Time) int {
	return int(math.Round(now.Sub(r.CreatedAt).Minutes()))
}

// ChatMessage 发送给模型的消息
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
