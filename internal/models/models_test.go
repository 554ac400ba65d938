package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationKey_String(t *testing.T) {
	key := ConversationKey{UserID: "amy", Topic: "Algebra", YearLevel: 7}
	assert.Equal(t, "amy_Algebra_7", key.String())
}

func TestConversationRecord_CloneIsIndependent(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := ConversationRecord{Topic: "Algebra", CreatedAt: now}
	rec.AppendTurn(Turn{Role: RoleUser, Content: "Solve 2x + 5 = 15", Timestamp: now})

	clone := rec.Clone()
	clone.Messages[0].Content = "changed"
	clone.AppendTurn(Turn{Role: RoleAssistant, Content: "What is 2x?", Timestamp: now.Add(time.Second)})

	assert.Equal(t, "Solve 2x + 5 = 15", rec.Messages[0].Content)
	assert.Len(t, rec.Messages, 1)
	assert.Equal(t, now, rec.LastActiveAt)
	assert.Equal(t, now.Add(time.Second), clone.LastActiveAt)
}

func TestConversationRecord_AppendTurnKeepsLatestActivity(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := ConversationRecord{LastActiveAt: now}
	rec.AppendTurn(Turn{Role: RoleUser, Content: "late", Timestamp: now.Add(-time.Minute)})
	assert.Equal(t, now, rec.LastActiveAt)
}

func TestConversationRecord_AgeMinutes(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := ConversationRecord{CreatedAt: created}

	assert.Equal(t, 0, rec.AgeMinutes(created.Add(29*time.Second)))
	assert.Equal(t, 1, rec.AgeMinutes(created.Add(80*time.Second)))
	// 半分钟进位
	assert.Equal(t, 1, rec.AgeMinutes(created.Add(30*time.Second)))
	assert.Equal(t, 2, rec.AgeMinutes(created.Add(90*time.Second)))
	assert.Equal(t, 12, rec.AgeMinutes(created.Add(12*time.Minute)))
}

func TestTokenUsage(t *testing.T) {
	tests := []struct {
		name       string
		usage      TokenUsage
		remaining  int
		percentage int
	}{
		{"fresh", TokenUsage{Used: 0, Limit: 5000}, 5000, 0},
		{"partial", TokenUsage{Used: 1234, Limit: 5000}, 3766, 25},
		{"rounds up", TokenUsage{Used: 2, Limit: 3}, 1, 67},
		{"over limit", TokenUsage{Used: 5200, Limit: 5000}, 0, 104},
		{"zero limit", TokenUsage{Used: 10, Limit: 0}, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.remaining, tt.usage.Remaining())
			assert.Equal(t, tt.percentage, tt.usage.Percentage())
		})
	}
}
