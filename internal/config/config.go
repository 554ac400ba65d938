package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Tutor     TutorConfig     `mapstructure:"tutor"`
	Retention RetentionConfig `mapstructure:"retention"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Unidoc    UnidocConfig    `mapstructure:"unidoc"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version" validate:"required"`
	Env     string `mapstructure:"env" validate:"required,oneof=development staging production"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port        int      `mapstructure:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   int      `mapstructure:"rate_limit" validate:"min=0"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// AIConfig 回复生成配置
type AIConfig struct {
	Provider           string        `mapstructure:"provider" validate:"required,oneof=openai offline"`
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url" validate:"required,url"`
	Model              string        `mapstructure:"model" validate:"required"`
	MaxTokens          int           `mapstructure:"max_tokens" validate:"min=1"`
	WorksheetMaxTokens int           `mapstructure:"worksheet_max_tokens" validate:"min=1"`
	Temperature        float64       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// TutorConfig 会话与额度策略
type TutorConfig struct {
	TokenLimit          int           `mapstructure:"token_limit" validate:"min=1"`
	InputTokenCeiling   int           `mapstructure:"input_token_ceiling" validate:"min=1"`
	RecencyWindow       time.Duration `mapstructure:"recency_window" validate:"gt=0"`
	CompactionThreshold int           `mapstructure:"compaction_threshold" validate:"min=1"`
	CompactionKeep      int           `mapstructure:"compaction_keep" validate:"min=1,ltfield=CompactionThreshold"`
	DefaultSubject      string        `mapstructure:"default_subject" validate:"required"`
	DefaultYearLevel    int           `mapstructure:"default_year_level" validate:"min=1,max=12"`
	DefaultCurriculum   string        `mapstructure:"default_curriculum" validate:"required"`
}

// RetentionConfig 清理任务配置
type RetentionConfig struct {
	Interval                time.Duration `mapstructure:"interval" validate:"gt=0"`
	ConversationMaxAge      time.Duration `mapstructure:"conversation_max_age" validate:"gt=0"`
	MaxConversationsPerUser int           `mapstructure:"max_conversations_per_user" validate:"min=1"`
	TranscriptMaxAge        time.Duration `mapstructure:"transcript_max_age" validate:"gt=0"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"min=1"`
	SuccessThreshold int           `mapstructure:"success_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" validate:"gt=0"`
}

// RedisConfig 用量镜像配置
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig 学习记录事件配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// MetricsConfig Prometheus配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
}

// UnidocConfig 文档库许可证
type UnidocConfig struct {
	LicenseKey string `mapstructure:"license_key"`
}

// UpdateCallback 配置更新回调
type UpdateCallback func(oldConfig, newConfig *Config) error

// Loader 配置加载器
type Loader struct {
	viper     *viper.Viper
	validator *validator.Validate
	config    *Config
	callbacks []UpdateCallback
	watching  bool
	mu        sync.RWMutex
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		viper:     v,
		validator: validator.New(),
	}
}

// Load 依次读取默认值、环境变量和配置文件
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()

	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	l.setDefaults()
	l.loadFromEnv()

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		l.viper.SetConfigFile(configFile)
		if err := l.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.validator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Current 返回当前配置的副本
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.config == nil {
		return nil
	}
	cfg := *l.config
	return &cfg
}

// OnChange 注册配置更新回调
func (l *Loader) OnChange(callback UpdateCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// Watch 监听配置文件变化，仅在设置了 CONFIG_FILE 时生效
func (l *Loader) Watch(onError func(error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watching {
		return fmt.Errorf("config watcher is already running")
	}
	if l.viper.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	l.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := l.Reload(); err != nil && onError != nil {
			onError(err)
		}
	})
	l.viper.WatchConfig()
	l.watching = true
	return nil
}

// Reload 重新加载配置并触发回调；新配置无效时保留旧配置
func (l *Loader) Reload() error {
	newConfig, err := l.load()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	l.mu.Lock()
	oldConfig := l.config
	l.config = newConfig
	callbacks := make([]UpdateCallback, len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.Unlock()

	var errs []string
	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config update callbacks failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// setDefaults 设置默认值
func (l *Loader) setDefaults() {
	v := l.viper

	v.SetDefault("app.name", "studybuddy-tutor")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.rate_limit", 120)

	v.SetDefault("log.level", "info")

	v.SetDefault("ai.provider", "offline")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 180)
	v.SetDefault("ai.worksheet_max_tokens", 1500)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", "30s")

	v.SetDefault("tutor.token_limit", 5000)
	v.SetDefault("tutor.input_token_ceiling", 1000)
	v.SetDefault("tutor.recency_window", "5m")
	v.SetDefault("tutor.compaction_threshold", 14)
	v.SetDefault("tutor.compaction_keep", 10)
	v.SetDefault("tutor.default_subject", "Mathematics")
	v.SetDefault("tutor.default_year_level", 7)
	v.SetDefault("tutor.default_curriculum", "NSW")

	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.conversation_max_age", "168h")
	v.SetDefault("retention.max_conversations_per_user", 50)
	v.SetDefault("retention.transcript_max_age", "720h")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 3)
	v.SetDefault("breaker.open_timeout", "1m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "tutor-transcripts")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("unidoc.license_key", "")
}

// loadFromEnv 兼容未带前缀的常用环境变量
func (l *Loader) loadFromEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && os.Getenv("TUTOR_AI_API_KEY") == "" {
		l.viper.Set("ai.api_key", key)
	}
	if os.Getenv("TUTOR_AI_PROVIDER") == "" {
		apiKey := l.viper.GetString("ai.api_key")
		if apiKey != "" {
			l.viper.Set("ai.provider", "openai")
		}
	}
	for _, name := range []string{"SERVER_PORT", "PORT"} {
		if port := os.Getenv(name); port != "" && os.Getenv("TUTOR_SERVER_PORT") == "" {
			if p, err := strconv.Atoi(port); err == nil {
				l.viper.Set("server.port", p)
			}
			break
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" && os.Getenv("TUTOR_LOG_LEVEL") == "" {
		l.viper.Set("log.level", strings.ToLower(level))
	}
	if os.Getenv("ENV") == "production" && os.Getenv("TUTOR_APP_ENV") == "" {
		l.viper.Set("app.env", "production")
	}
	if key := os.Getenv("UNIDOC_LICENSE_API_KEY"); key != "" && os.Getenv("TUTOR_UNIDOC_LICENSE_KEY") == "" {
		l.viper.Set("unidoc.license_key", key)
	}
}
