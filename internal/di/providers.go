package di

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/internal/config"
	"github.com/studybuddy/tutor-backend/internal/curriculum"
	"github.com/studybuddy/tutor-backend/internal/database"
	"github.com/studybuddy/tutor-backend/internal/errors"
	"github.com/studybuddy/tutor-backend/internal/kafka"
	"github.com/studybuddy/tutor-backend/internal/services"
)

// Infrastructure 可选的外部连接，未启用或连接失败时为nil
type Infrastructure struct {
	Redis     *redis.Client
	Publisher *kafka.TranscriptPublisher
}

// Close 关闭外部连接
func (i *Infrastructure) Close() error {
	var firstErr error
	if i.Publisher != nil {
		if err := i.Publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Components 应用组件集合
type Components struct {
	dig.In

	Config        *config.Config
	Logger        *zap.Logger
	Infra         *Infrastructure
	Curriculum    *curriculum.Table
	Conversations *services.ConversationStore
	Transcripts   *services.TranscriptStore
	Meter         *services.TokenMeter
	Resolver      *services.SessionResolver
	Generator     *services.GuardedGenerator
	Orchestrator  *services.ChatOrchestrator
	Worksheets    *services.WorksheetService
	Sweeper       *services.RetentionSweeper
	Metrics       *services.MetricsService
	ErrorHandler  *errors.ErrorHandler
}

// Build 注册所有提供者并解析组件
func Build(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	container := NewContainer()
	if err := RegisterProviders(container, cfg, logger); err != nil {
		return nil, fmt.Errorf("register providers: %w", err)
	}

	var comps *Components
	if err := container.Invoke(func(c Components) {
		comps = &c
	}); err != nil {
		return nil, fmt.Errorf("resolve components: %w", err)
	}
	return comps, nil
}

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *Container, cfg *config.Config, logger *zap.Logger) error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return container.ProvideAll(
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger },
		newInfrastructure,
		curriculum.Default,
		services.NewConversationStore,
		services.NewTranscriptStore,
		services.NewTopicClassifier,
		services.NewMetricsService,
		services.NewPromptBuilder,
		errors.NewErrorMonitor,
		errors.NewErrorHandler,
		newUsageMirror,
		newTokenMeter,
		newSessionResolver,
		newContextCompactor,
		newGuardedGenerator,
		newChatOrchestrator,
		newWorksheetService,
		newRetentionSweeper,
	)
}

func newInfrastructure(cfg *config.Config, logger *zap.Logger) *Infrastructure {
	infra := &Infrastructure{}

	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, usage mirror disabled", zap.Error(err))
		} else {
			infra.Redis = client
			logger.Info("Redis usage mirror enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewTranscriptPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Warn("Kafka unavailable, transcript events disabled", zap.Error(err))
		} else {
			infra.Publisher = publisher
		}
	}
	return infra
}

func newUsageMirror(cfg *config.Config, infra *Infrastructure) services.UsageMirror {
	if infra.Redis == nil {
		return nil
	}
	return services.NewRedisUsageMirror(infra.Redis, cfg.Redis.TTL)
}

func newTokenMeter(cfg *config.Config, mirror services.UsageMirror, logger *zap.Logger) *services.TokenMeter {
	return services.NewTokenMeter(cfg.Tutor.TokenLimit, mirror, logger)
}

func newSessionResolver(cfg *config.Config, store *services.ConversationStore, classifier *services.TopicClassifier, logger *zap.Logger) *services.SessionResolver {
	return services.NewSessionResolver(store, classifier, cfg.Tutor.RecencyWindow, logger)
}

func newContextCompactor(cfg *config.Config) *services.ContextCompactor {
	return services.NewContextCompactor(cfg.Tutor.CompactionThreshold, cfg.Tutor.CompactionKeep)
}

func newGuardedGenerator(cfg *config.Config, logger *zap.Logger) *services.GuardedGenerator {
	var inner services.ReplyGenerator
	if cfg.AI.Provider == "openai" && cfg.AI.APIKey != "" {
		inner = services.NewOpenAIGenerator(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, float32(cfg.AI.Temperature))
		logger.Info("Reply generator configured", zap.String("model", cfg.AI.Model))
	} else {
		inner = services.NewOfflineGenerator()
		logger.Warn("No API key configured, using offline replies")
	}
	breaker := services.NewCircuitBreaker("reply-generator",
		cfg.Breaker.FailureThreshold, cfg.Breaker.SuccessThreshold, cfg.Breaker.OpenTimeout)
	return services.NewGuardedGenerator(inner, breaker, cfg.AI.Timeout, logger)
}

type orchestratorParams struct {
	dig.In

	Config      *config.Config
	Logger      *zap.Logger
	Infra       *Infrastructure
	Classifier  *services.TopicClassifier
	Meter       *services.TokenMeter
	Resolver    *services.SessionResolver
	Store       *services.ConversationStore
	Compactor   *services.ContextCompactor
	Prompts     *services.PromptBuilder
	Generator   *services.GuardedGenerator
	Transcripts *services.TranscriptStore
}

func newChatOrchestrator(p orchestratorParams) *services.ChatOrchestrator {
	deps := services.OrchestratorDeps{
		Classifier:  p.Classifier,
		Meter:       p.Meter,
		Resolver:    p.Resolver,
		Store:       p.Store,
		Compactor:   p.Compactor,
		Prompts:     p.Prompts,
		Generator:   p.Generator,
		Transcripts: p.Transcripts,
		Logger:      p.Logger,
	}
	if p.Infra.Publisher != nil {
		deps.Publisher = p.Infra.Publisher
	}
	return services.NewChatOrchestrator(deps, services.OrchestratorOptions{
		InputTokenCeiling: p.Config.Tutor.InputTokenCeiling,
		MaxReplyTokens:    p.Config.AI.MaxTokens,
		Defaults: services.ChatDefaults{
			Subject:    p.Config.Tutor.DefaultSubject,
			YearLevel:  p.Config.Tutor.DefaultYearLevel,
			Curriculum: p.Config.Tutor.DefaultCurriculum,
		},
	})
}

func newWorksheetService(cfg *config.Config, generator *services.GuardedGenerator, logger *zap.Logger) *services.WorksheetService {
	return services.NewWorksheetService(generator, cfg.AI.WorksheetMaxTokens, logger)
}

func newRetentionSweeper(cfg *config.Config, conversations *services.ConversationStore, transcripts *services.TranscriptStore, logger *zap.Logger) *services.RetentionSweeper {
	return services.NewRetentionSweeper(conversations, transcripts, services.RetentionPolicy{
		Interval:           cfg.Retention.Interval,
		ConversationMaxAge: cfg.Retention.ConversationMaxAge,
		PerUserCap:         cfg.Retention.MaxConversationsPerUser,
		TranscriptMaxAge:   cfg.Retention.TranscriptMaxAge,
	}, logger)
}
