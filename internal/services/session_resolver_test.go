package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/tutor-backend/internal/models"
)

func newTestResolver(now *time.Time) (*SessionResolver, *ConversationStore) {
	store := NewConversationStore()
	r := NewSessionResolver(store, NewTopicClassifier(), 5*time.Minute, nil)
	r.now = func() time.Time { return *now }
	return r, store
}

func resolveAndCommit(r *SessionResolver, req ResolveRequest) Resolution {
	res := r.Resolve(req)
	r.Commit(res, res.Record)
	return res
}

func TestSessionResolver_CreatesRecord(t *testing.T) {
	now := baseTime
	r, store := newTestResolver(&now)

	res := r.Resolve(ResolveRequest{UserID: "amy", Message: "Solve 2x + 5 = 15", YearLevel: 7, Curriculum: "NSW"})
	assert.True(t, res.Created)
	assert.Equal(t, "Algebra", res.DetectedTopic)
	assert.Equal(t, models.ConversationKey{UserID: "amy", Topic: "Algebra", YearLevel: 7}, res.Record.Key)
	assert.Equal(t, 1, res.ExistingConversations)
	assert.Zero(t, store.Len())

	r.Commit(res, res.Record)
	assert.Equal(t, 1, store.Len())
}

func TestSessionResolver_ContinuityKeepsKey(t *testing.T) {
	now := baseTime
	r, _ := newTestResolver(&now)

	first := resolveAndCommit(r, ResolveRequest{UserID: "amy", Message: "Solve 2x + 5 = 15", YearLevel: 7})
	now = now.Add(2 * time.Minute)
	second := r.Resolve(ResolveRequest{UserID: "amy", Message: "5", YearLevel: 7})

	assert.False(t, second.Created)
	assert.Equal(t, first.Record.Key, second.Record.Key)
}

func TestSessionResolver_TopicDriftMigratesWithinWindow(t *testing.T) {
	now := baseTime
	r, store := newTestResolver(&now)

	first := resolveAndCommit(r, ResolveRequest{UserID: "amy", Message: "Solve 2x + 5 = 15", YearLevel: 7})
	now = now.Add(time.Minute)
	second := r.Resolve(ResolveRequest{UserID: "amy", Message: "what is the perimeter of a triangle with equal sides", YearLevel: 7})

	assert.True(t, second.Migrated)
	require.NotNil(t, second.PreviousKey)
	assert.Equal(t, first.Record.Key, *second.PreviousKey)
	assert.Equal(t, "Geometry", second.Record.Topic)
	assert.Equal(t, now, second.Record.LastActiveAt)
	_, ok := store.Get(first.Record.Key)
	assert.True(t, ok, "migration is not applied before commit")

	r.Commit(second, second.Record)
	assert.Equal(t, 1, store.Len())
	_, ok = store.Get(first.Record.Key)
	assert.False(t, ok)
	migrated, ok := store.Get(second.Record.Key)
	require.True(t, ok)
	assert.Equal(t, "Geometry", migrated.Topic)
}

func TestSessionResolver_SplitOutsideWindow(t *testing.T) {
	now := baseTime
	r, store := newTestResolver(&now)

	resolveAndCommit(r, ResolveRequest{UserID: "amy", Message: "Solve 2x + 5 = 15", YearLevel: 7})
	now = now.Add(10 * time.Minute)
	second := resolveAndCommit(r, ResolveRequest{UserID: "amy", Message: "what is the perimeter of a triangle with equal sides", YearLevel: 7})

	assert.True(t, second.Created)
	assert.False(t, second.Migrated)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 2, second.ExistingConversations)
}

func TestSessionResolver_ResetContext(t *testing.T) {
	now := baseTime
	r, store := newTestResolver(&now)

	first := r.Resolve(ResolveRequest{UserID: "amy", Message: "Solve 2x + 5 = 15", YearLevel: 7})
	rec := first.Record
	rec.AppendTurn(models.Turn{Role: models.RoleUser, Content: "Solve 2x + 5 = 15", Timestamp: now})
	store.Save(rec)

	now = now.Add(10 * time.Minute)
	second := r.Resolve(ResolveRequest{UserID: "amy", Message: "Solve 3x + 1 = 10", YearLevel: 7, ResetContext: true})
	assert.True(t, second.Created)
	assert.Empty(t, second.Record.Messages)
}

func TestSessionResolver_Reset(t *testing.T) {
	now := baseTime
	r, store := newTestResolver(&now)
	resolveAndCommit(r, ResolveRequest{UserID: "amy", Message: "Solve 2x + 5 = 15", YearLevel: 7})

	key, existed := r.Reset("amy", "Algebra", 7)
	assert.True(t, existed)
	assert.Equal(t, "amy_Algebra_7", key.String())
	assert.Empty(t, store.ListByUser("amy"))

	_, existed = r.Reset("amy", "Algebra", 7)
	assert.False(t, existed)
}

func TestSessionResolver_LockUserSerializes(t *testing.T) {
	now := baseTime
	r, _ := newTestResolver(&now)

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.LockUser("amy")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	r.locksMu.Lock()
	assert.Empty(t, r.locks)
	r.locksMu.Unlock()
}

func TestSessionResolver_LockUserIndependentUsers(t *testing.T) {
	now := baseTime
	r, _ := newTestResolver(&now)

	unlockAmy := r.LockUser("amy")
	done := make(chan struct{})
	go func() {
		unlock := r.LockUser("ben")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another user blocked")
	}
	unlockAmy()
	unlockAmy()
}
