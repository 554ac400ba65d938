package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/tutor-backend/internal/config"
	"github.com/studybuddy/tutor-backend/internal/services"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "tutor", Version: "test", Env: "development"},
		AI: config.AIConfig{
			Provider:           "offline",
			BaseURL:            "https://api.openai.com/v1",
			Model:              "gpt-4o-mini",
			MaxTokens:          180,
			WorksheetMaxTokens: 1500,
			Temperature:        0.7,
			Timeout:            time.Second,
		},
		Tutor: config.TutorConfig{
			TokenLimit:          5000,
			InputTokenCeiling:   1000,
			RecencyWindow:       5 * time.Minute,
			CompactionThreshold: 14,
			CompactionKeep:      10,
			DefaultSubject:      "Mathematics",
			DefaultYearLevel:    7,
			DefaultCurriculum:   "NSW",
		},
		Retention: config.RetentionConfig{
			Interval:                time.Hour,
			ConversationMaxAge:      24 * time.Hour,
			MaxConversationsPerUser: 10,
			TranscriptMaxAge:        48 * time.Hour,
		},
		Breaker: config.BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute},
	}
}

func TestContainerBasicOperations(t *testing.T) {
	container := NewContainer()

	type TestService struct {
		Name string
	}

	require.NoError(t, container.ProvideAll(func() *TestService {
		return &TestService{Name: "test"}
	}))

	err := container.Invoke(func(svc *TestService) {
		assert.Equal(t, "test", svc.Name)
	})
	assert.NoError(t, err)
}

func TestRegisterProvidersRequiresConfig(t *testing.T) {
	err := RegisterProviders(NewContainer(), nil, nil)
	assert.EqualError(t, err, "config not loaded")
}

func TestBuild(t *testing.T) {
	comps, err := Build(testConfig(), nil)
	require.NoError(t, err)

	assert.Nil(t, comps.Infra.Redis)
	assert.Nil(t, comps.Infra.Publisher)
	assert.NoError(t, comps.Infra.Close())
	assert.NotNil(t, comps.ErrorHandler)
	assert.NotNil(t, comps.Metrics)
	assert.NotNil(t, comps.Sweeper)

	assert.Equal(t, "offline", comps.Generator.Model())
	assert.False(t, comps.Worksheets.Enabled())
	assert.Equal(t, 5000, comps.Meter.DefaultLimit())
	assert.Equal(t, "NSW", comps.Orchestrator.Defaults().Curriculum)

	// 同一容器内共享存储
	resp, err := comps.Orchestrator.Handle(context.Background(), services.ChatRequest{
		Message: "How do I solve 2x + 3 = 11?",
		UserID:  "amy",
	})
	require.NoError(t, err)
	comps.Orchestrator.Drain()
	assert.False(t, resp.Fallback)
	assert.Contains(t, resp.Response, "What do you think might be the first step?")
	assert.Equal(t, 1, comps.Conversations.Len())
	_, total := comps.Transcripts.List("amy", 10, 0)
	assert.Equal(t, 1, total)
	assert.Equal(t, resp.Tokens.Used, comps.Meter.GetUsage("amy").Used)
}

func TestBuild_OpenAIProviderNeedsKey(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Provider = "openai"
	comps, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.False(t, comps.Generator.Configured())

	cfg.AI.APIKey = "sk-test"
	comps, err = Build(cfg, nil)
	require.NoError(t, err)
	assert.True(t, comps.Generator.Configured())
	assert.Equal(t, "gpt-4o-mini", comps.Generator.Model())
}
