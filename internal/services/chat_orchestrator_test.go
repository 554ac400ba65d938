package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/tutor-backend/internal/curriculum"
	apperrors "github.com/studybuddy/tutor-backend/internal/errors"
	"github.com/studybuddy/tutor-backend/internal/models"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []models.TranscriptEntry
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, entry models.TranscriptEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return p.err
}

type orchestratorFixture struct {
	orch        *ChatOrchestrator
	store       *ConversationStore
	meter       *TokenMeter
	transcripts *TranscriptStore
	publisher   *recordingPublisher
	now         time.Time
}

func newOrchestratorFixture(t *testing.T, gen ReplyGenerator, tokenLimit int) *orchestratorFixture {
	t.Helper()
	table, err := curriculum.Default()
	require.NoError(t, err)

	f := &orchestratorFixture{now: baseTime}
	clock := func() time.Time { return f.now }

	f.store = NewConversationStore()
	f.meter = NewTokenMeter(tokenLimit, nil, nil)
	f.transcripts = NewTranscriptStore()
	f.transcripts.now = clock
	f.publisher = &recordingPublisher{}

	classifier := NewTopicClassifier()
	resolver := NewSessionResolver(f.store, classifier, 5*time.Minute, nil)
	resolver.now = clock

	f.orch = NewChatOrchestrator(OrchestratorDeps{
		Classifier:  classifier,
		Meter:       f.meter,
		Resolver:    resolver,
		Store:       f.store,
		Compactor:   NewContextCompactor(14, 10),
		Prompts:     NewPromptBuilder(table),
		Generator:   gen,
		Transcripts: f.transcripts,
		Publisher:   f.publisher,
	}, OrchestratorOptions{InputTokenCeiling: 1000, MaxReplyTokens: 180})
	f.orch.now = clock
	return f
}

func TestChatOrchestrator_EndToEnd(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "What could we do first?"}}
	f := newOrchestratorFixture(t, gen, 5000)
	ctx := context.Background()

	first, err := f.orch.Handle(ctx, ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	assert.Equal(t, "Algebra", first.DetectedTopic)
	assert.Equal(t, "Algebra", first.Subject)
	assert.Equal(t, "What could we do first?", first.Response)
	assert.Equal(t, 2, first.ConversationLength)
	assert.Equal(t, "amy_Algebra_7", first.ConversationID)
	assert.Equal(t, "NSW", first.Curriculum)
	assert.Equal(t, 7, first.YearLevel)
	assert.False(t, first.Fallback)
	assert.Greater(t, first.Tokens.Used, 0)
	assert.Equal(t, 5, first.Tokens.Input)
	assert.Equal(t, 6, first.Tokens.Output)
	assert.Equal(t, 11, first.Tokens.ThisRequest)
	assert.Equal(t, 5000, first.Tokens.Limit)

	assert.Contains(t, gen.lastReq.SystemPrompt, "specializing in Algebra")
	assert.Equal(t, 180, gen.lastReq.MaxTokens)
	require.Len(t, gen.lastReq.Messages, 1)

	f.now = f.now.Add(time.Minute)
	second, err := f.orch.Handle(ctx, ChatRequest{Message: "5", UserID: "amy"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.ConversationLength+2, second.ConversationLength)
	assert.Equal(t, 1, f.store.Len())
	require.Len(t, gen.lastReq.Messages, 3)

	f.orch.Drain()
	f.publisher.mu.Lock()
	assert.Len(t, f.publisher.entries, 2)
	f.publisher.mu.Unlock()

	page, total := f.transcripts.List("amy", 10, 0)
	assert.Equal(t, 2, total)
	assert.Equal(t, "5", page[0].Message)
	assert.Equal(t, "Algebra", page[0].Metadata.Subject)
	assert.Equal(t, "amy_Algebra_7", page[0].Metadata.ConversationKey)
	assert.NotEmpty(t, page[0].ID)
}

func TestChatOrchestrator_UsageEqualsSumOfCharges(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "Which operation comes first here?"}}
	f := newOrchestratorFixture(t, gen, 5000)

	sum := 0
	for _, msg := range []string{"Solve 2x + 5 = 15", "subtract 5", "2x = 10", "divide by 2"} {
		resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: msg, UserID: "amy"})
		require.NoError(t, err)
		sum += resp.Tokens.ThisRequest
		f.now = f.now.Add(30 * time.Second)
	}

	assert.Equal(t, sum, f.meter.GetUsage("amy").Used)
	rec, ok := f.store.MostRecent("amy")
	require.True(t, ok)
	assert.Equal(t, sum, rec.TotalTokensUsed)
	assert.Len(t, rec.Messages, 8)
}

func TestChatOrchestrator_AuthoritativeCounts(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "What do you notice?", InputTokens: 300, OutputTokens: 12}}
	f := newOrchestratorFixture(t, gen, 5000)

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	assert.Equal(t, 312, resp.Tokens.ThisRequest)
	assert.Equal(t, 312, resp.Tokens.ConversationTotal)
}

func TestChatOrchestrator_EmptyMessage(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "x"}}
	f := newOrchestratorFixture(t, gen, 5000)

	_, err := f.orch.Handle(context.Background(), ChatRequest{Message: "   ", UserID: "amy"})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPCode)

	assert.Zero(t, gen.calls)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.meter.usage)
}

func TestChatOrchestrator_InputTooLong(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "x"}}
	f := newOrchestratorFixture(t, gen, 5000)

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: strings.Repeat("1+", 2001), UserID: "amy"})
	require.NoError(t, err)
	assert.Equal(t, InputTooLongReply, resp.Response)
	assert.Equal(t, ReasonInputTooLong, resp.Reason)
	assert.Zero(t, gen.calls)
	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.meter.GetUsage("amy").Used)
}

func TestChatOrchestrator_OffTopic(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "x"}}
	f := newOrchestratorFixture(t, gen, 5000)

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "tell me about politics", UserID: "amy"})
	require.NoError(t, err)
	assert.Equal(t, OffTopicReply, resp.Response)
	assert.Equal(t, ReasonOffTopic, resp.Reason)
	assert.Zero(t, gen.calls)
	assert.Zero(t, f.store.Len())
}

func TestChatOrchestrator_TokenCeiling(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "What could we do first?"}}
	f := newOrchestratorFixture(t, gen, 10)

	first, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, first.Tokens.Used, 10)
	before, _ := f.store.Get(models.ConversationKey{UserID: "amy", Topic: "Algebra", YearLevel: 7})

	_, err = f.orch.Handle(context.Background(), ChatRequest{Message: "5", UserID: "amy"})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeTokenLimitExceeded, appErr.Code)
	assert.Equal(t, http.StatusTooManyRequests, appErr.HTTPCode)
	assert.NotNil(t, appErr.Details)

	after, _ := f.store.Get(before.Key)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1, gen.calls)
}

func TestChatOrchestrator_GenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	f := newOrchestratorFixture(t, gen, 5000)

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, FallbackReply, resp.Response)
	assert.Equal(t, EstimateTokens("Solve 2x + 5 = 15"), resp.Tokens.ThisRequest)
	assert.Zero(t, resp.Tokens.Output)

	rec, ok := f.store.MostRecent("amy")
	require.True(t, ok)
	require.Len(t, rec.Messages, 2)
	assert.True(t, rec.Messages[1].Fallback)

	f.orch.Drain()
	_, total := f.transcripts.List("amy", 10, 0)
	assert.Zero(t, total)
	assert.Empty(t, f.publisher.entries)
}

func TestChatOrchestrator_GeneratorPanicLeavesStoreUntouched(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "What could we do first?"}}
	f := newOrchestratorFixture(t, gen, 5000)
	ctx := context.Background()

	first, err := f.orch.Handle(ctx, ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	usedBefore := f.meter.GetUsage("amy").Used

	gen.panicked = true
	f.now = f.now.Add(time.Minute)
	assert.Panics(t, func() {
		_, _ = f.orch.Handle(ctx, ChatRequest{Message: "what is the perimeter of a triangle with equal sides", UserID: "amy"})
	})
	assert.Panics(t, func() {
		_, _ = f.orch.Handle(ctx, ChatRequest{Message: "Solve 3x = 12", UserID: "ben"})
	})

	assert.Equal(t, 1, f.store.Len())
	rec, ok := f.store.Get(models.ConversationKey{UserID: "amy", Topic: "Algebra", YearLevel: 7})
	require.True(t, ok)
	assert.Len(t, rec.Messages, 2)
	assert.Empty(t, f.store.ListByUser("ben"))
	assert.Equal(t, usedBefore, f.meter.GetUsage("amy").Used)
	assert.Equal(t, 1, f.transcripts.Stats("amy").TotalTranscripts)

	gen.panicked = false
	done := make(chan struct{})
	go func() {
		defer close(done)
		next, err := f.orch.Handle(ctx, ChatRequest{Message: "5", UserID: "amy"})
		if assert.NoError(t, err) {
			assert.Equal(t, first.ConversationID, next.ConversationID)
			assert.Equal(t, 4, next.ConversationLength)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("user lock still held after panic")
	}
	f.orch.Drain()
}

func TestChatOrchestrator_EmptyModelReply(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "  "}}
	f := newOrchestratorFixture(t, gen, 5000)

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	assert.Equal(t, EmptyModelReply, resp.Response)
}

func TestChatOrchestrator_PublishFailureIsIgnored(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "What do you notice?"}}
	f := newOrchestratorFixture(t, gen, 5000)
	f.publisher.err = errors.New("broker unavailable")

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	f.orch.Drain()
}

func TestChatOrchestrator_DefaultsApplied(t *testing.T) {
	gen := &stubGenerator{reply: &Reply{Text: "What do you notice?"}}
	f := newOrchestratorFixture(t, gen, 5000)

	resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15"})
	require.NoError(t, err)
	assert.Equal(t, "anonymous_Algebra_7", resp.ConversationID)
}

func TestChatOrchestrator_ConcurrentSameUser(t *testing.T) {
	gen := &lockedStub{reply: "What do you notice?"}
	f := newOrchestratorFixture(t, gen, 1000000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sum := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.orch.Handle(context.Background(), ChatRequest{Message: "Solve 2x + 5 = 15", UserID: "amy"})
			if assert.NoError(t, err) {
				mu.Lock()
				sum += resp.Tokens.ThisRequest
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.Len())
	rec, ok := f.store.MostRecent("amy")
	require.True(t, ok)
	assert.Len(t, rec.Messages, 20)
	assert.Equal(t, sum, f.meter.GetUsage("amy").Used)
	assert.Equal(t, sum, rec.TotalTokensUsed)
}

// lockedStub 并发安全的生成器
type lockedStub struct {
	reply string
}

func (s *lockedStub) Generate(ctx context.Context, req GenerationRequest) (*Reply, error) {
	return &Reply{Text: s.reply}, nil
}

func (s *lockedStub) Model() string    { return "stub" }
func (s *lockedStub) Configured() bool { return true }
