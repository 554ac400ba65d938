package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/tutor-backend/internal/models"
)

var baseTime = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

func newRecord(user, topic string, lastActive time.Time) models.ConversationRecord {
	return models.ConversationRecord{
		Key:          models.ConversationKey{UserID: user, Topic: topic, YearLevel: 7},
		Topic:        topic,
		YearLevel:    7,
		Curriculum:   "NSW",
		CreatedAt:    lastActive,
		LastActiveAt: lastActive,
	}
}

func TestConversationStore_GetReturnsCopy(t *testing.T) {
	s := NewConversationStore()
	rec := newRecord("amy", "Algebra", baseTime)
	rec.Messages = []models.Turn{{Role: models.RoleUser, Content: "hi"}}
	s.Save(rec)

	got, ok := s.Get(rec.Key)
	require.True(t, ok)
	got.Messages[0].Content = "changed"
	got.Messages = append(got.Messages, models.Turn{Role: models.RoleAssistant})

	again, _ := s.Get(rec.Key)
	assert.Equal(t, "hi", again.Messages[0].Content)
	assert.Len(t, again.Messages, 1)
}

func TestConversationStore_SaveAlignsTopic(t *testing.T) {
	s := NewConversationStore()
	rec := newRecord("amy", "Algebra", baseTime)
	rec.Topic = "Geometry"
	s.Save(rec)

	got, _ := s.Get(rec.Key)
	assert.Equal(t, "Algebra", got.Topic)
}

func TestConversationStore_Rekey(t *testing.T) {
	s := NewConversationStore()
	rec := newRecord("amy", "Algebra", baseTime)
	s.Save(rec)

	newKey := models.ConversationKey{UserID: "amy", Topic: "Fractions", YearLevel: 7}
	require.True(t, s.Rekey(rec.Key, newKey))
	assert.False(t, s.Rekey(rec.Key, newKey))

	_, ok := s.Get(rec.Key)
	assert.False(t, ok)
	got, ok := s.Get(newKey)
	require.True(t, ok)
	assert.Equal(t, "Fractions", got.Topic)
	assert.Equal(t, 1, s.Len())
}

func TestConversationStore_UserMatchingIsExact(t *testing.T) {
	s := NewConversationStore()
	s.Save(newRecord("amy", "Algebra", baseTime))
	s.Save(newRecord("amy2", "Algebra", baseTime.Add(time.Minute)))

	assert.Len(t, s.ListByUser("amy"), 1)
	recent, ok := s.MostRecent("amy")
	require.True(t, ok)
	assert.Equal(t, "amy", recent.Key.UserID)
}

func TestConversationStore_ListByUserNewestFirst(t *testing.T) {
	s := NewConversationStore()
	s.Save(newRecord("amy", "Algebra", baseTime))
	s.Save(newRecord("amy", "Geometry", baseTime.Add(2*time.Minute)))
	s.Save(newRecord("amy", "Fractions", baseTime.Add(time.Minute)))

	list := s.ListByUser("amy")
	require.Len(t, list, 3)
	assert.Equal(t, "Geometry", list[0].Topic)
	assert.Equal(t, "Fractions", list[1].Topic)
	assert.Equal(t, "Algebra", list[2].Topic)
}

func TestConversationStore_EvictStale(t *testing.T) {
	s := NewConversationStore()
	now := baseTime
	s.Save(newRecord("amy", "Algebra", now.Add(-8*24*time.Hour)))
	s.Save(newRecord("amy", "Geometry", now.Add(-6*24*time.Hour)))
	s.Save(newRecord("ben", "Algebra", now.Add(-time.Hour)))
	s.Save(newRecord("ben", "Geometry", now.Add(-2*time.Hour)))
	s.Save(newRecord("ben", "Fractions", now.Add(-3*time.Hour)))

	removed := s.EvictStale(now.Add(-7*24*time.Hour), 2)
	assert.Equal(t, 2, removed)

	_, ok := s.Get(models.ConversationKey{UserID: "amy", Topic: "Algebra", YearLevel: 7})
	assert.False(t, ok)
	_, ok = s.Get(models.ConversationKey{UserID: "amy", Topic: "Geometry", YearLevel: 7})
	assert.True(t, ok)
	_, ok = s.Get(models.ConversationKey{UserID: "ben", Topic: "Fractions", YearLevel: 7})
	assert.False(t, ok)
	assert.Equal(t, 3, s.Len())
}

func TestConversationStore_Stats(t *testing.T) {
	s := NewConversationStore()
	rec := newRecord("amy", "Algebra", baseTime)
	rec.Messages = make([]models.Turn, 4)
	rec.TotalTokensUsed = 40
	s.Save(rec)
	s.Save(newRecord("ben", "Algebra", baseTime))

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalConversations)
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 40, stats.TotalTokens)
	assert.Equal(t, map[string]int{"Algebra": 2}, stats.Subjects)
}
