package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/studybuddy/tutor-backend/internal/models"
)

func defaultPolicy() RetentionPolicy {
	return RetentionPolicy{
		Interval:           time.Hour,
		ConversationMaxAge: 7 * 24 * time.Hour,
		PerUserCap:         50,
		TranscriptMaxAge:   30 * 24 * time.Hour,
	}
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	conversations := NewConversationStore()
	transcripts := NewTranscriptStore()
	now := baseTime

	old := newRecord("amy", "Algebra", now.Add(-8*24*time.Hour))
	recent := newRecord("amy", "Geometry", now.Add(-6*24*time.Hour))
	conversations.Save(old)
	conversations.Save(recent)
	transcripts.Append(transcript("amy", 0, now.Add(-31*24*time.Hour), "Algebra"))
	transcripts.Append(transcript("amy", 1, now.Add(-29*24*time.Hour), "Algebra"))

	before := testutil.ToFloat64(retentionEvictionsTotal.WithLabelValues("conversation"))
	s := NewRetentionSweeper(conversations, transcripts, defaultPolicy(), nil)
	res := s.Sweep(now)

	assert.Equal(t, SweepResult{Conversations: 1, Transcripts: 1}, res)
	_, ok := conversations.Get(old.Key)
	assert.False(t, ok)
	_, ok = conversations.Get(recent.Key)
	assert.True(t, ok)
	assert.Equal(t, before+1, testutil.ToFloat64(retentionEvictionsTotal.WithLabelValues("conversation")))
	assert.Equal(t, float64(1), testutil.ToFloat64(activeConversations))
}

func TestRetentionSweeper_PerUserCap(t *testing.T) {
	conversations := NewConversationStore()
	now := baseTime
	for i := 0; i < 55; i++ {
		rec := newRecord("amy", "Topic", now.Add(-time.Duration(i)*time.Minute))
		rec.Key.YearLevel = i
		conversations.Save(rec)
	}

	s := NewRetentionSweeper(conversations, nil, defaultPolicy(), nil)
	res := s.Sweep(now)

	assert.Equal(t, 5, res.Conversations)
	list := conversations.ListByUser("amy")
	assert.Len(t, list, 50)
	assert.Equal(t, 0, list[0].Key.YearLevel)
	_, ok := conversations.Get(models.ConversationKey{UserID: "amy", Topic: "Topic", YearLevel: 54})
	assert.False(t, ok)
}

func TestRetentionSweeper_StartStop(t *testing.T) {
	conversations := NewConversationStore()
	conversations.Save(newRecord("amy", "Algebra", time.Now().Add(-8*24*time.Hour)))

	policy := defaultPolicy()
	policy.Interval = 5 * time.Millisecond
	s := NewRetentionSweeper(conversations, NewTranscriptStore(), policy, nil)

	s.Start(context.Background())
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return conversations.Len() == 0 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}
