package config

import (
	"PostcardAgent/pkg/logger"
	"PostcardAgent/pkg/util"
	"fmt"
	"log"
	"os"
	"time"
)

// config/config.go
type Config struct {
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`
	Log      logger.LogConfig
	Language string `env:"APP_LANGUAGE"`

	// 消息队列
	QueueDriver      string `env:"QUEUE_DRIVER"`
	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQHost     string `env:"RABBITMQ_HOST"`
	RabbitMQPort     string `env:"RABBITMQ_PORT"`
	RabbitMQUser     string `env:"RABBITMQ_USER"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD"`
	RabbitMQQueue    string `env:"RABBITMQ_QUEUE"`
	RedisAddr        string `env:"REDIS_ADDR"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	RedisDB          int    `env:"REDIS_DB"`
	RedisQueueKey    string `env:"REDIS_QUEUE_KEY"`
	ConsumeRate      string `env:"CONSUME_RATE"`

	// 对象存储
	StorageDriver string `env:"STORAGE_DRIVER"`

	// 大模型
	LLMProvider    string  `env:"LLM_PROVIDER"`
	LLMApiKey      string  `env:"LLM_API_KEY"`
	LLMBaseURL     string  `env:"LLM_BASE_URL"`
	LLMModel       string  `env:"LLM_MODEL"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE"`
	LLMMaxTokens   int     `env:"LLM_MAX_TOKENS"`

	// 语音合成
	TTSProvider      string        `env:"TTS_PROVIDER"`
	FishAudioKey     string        `env:"FISH_AUDIO_TTS_KEY"`
	FishAudioBaseURL string        `env:"FISH_AUDIO_BASE_URL"`
	FishAudioFormat  string        `env:"FISH_AUDIO_FORMAT"`
	PollyRegion      string        `env:"POLLY_REGION"`
	PollyVoice       string        `env:"POLLY_VOICE"`
	TTSTimeout       time.Duration `env:"TTS_TIMEOUT"`

	// 流程
	PipelineVariant       string  `env:"PIPELINE_VARIANT"`
	AbortOnPersistFailure bool    `env:"ABORT_ON_PERSIST_FAILURE"`
	RetryWaitScale        float64 `env:"RETRY_WAIT_SCALE"`

	// 缓存
	CacheType         string        `env:"CACHE_TYPE"`
	CharacterCacheTTL time.Duration `env:"CHARACTER_CACHE_TTL"`

	// 监控
	MonitorAddr    string `env:"MONITOR_ADDR"`
	HealthSchedule string `env:"HEALTH_SCHEDULE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver: util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:      util.GetEnv("DSN"),
		Language: util.GetEnvDefault("APP_LANGUAGE", "zh"),
		Log: logger.LogConfig{
			Level:      util.GetEnvDefault("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnvDefault("LOG_MAX_SIZE", 100)),
			MaxAge:     int(util.GetIntEnvDefault("LOG_MAX_AGE", 7)),
			MaxBackups: int(util.GetIntEnvDefault("LOG_MAX_BACKUPS", 5)),
		},

		QueueDriver:      util.GetEnvDefault("QUEUE_DRIVER", "amqp"),
		RabbitMQURL:      util.GetEnv("RABBITMQ_URL"),
		RabbitMQHost:     util.GetEnvDefault("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     util.GetEnvDefault("RABBITMQ_PORT", "5672"),
		RabbitMQUser:     util.GetEnvDefault("RABBITMQ_USER", "guest"),
		RabbitMQPassword: util.GetEnvDefault("RABBITMQ_PASSWORD", "guest"),
		RabbitMQQueue:    util.GetEnvDefault("RABBITMQ_QUEUE", "ai_reply_queue"),
		RedisAddr:        util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    util.GetEnv("REDIS_PASSWORD"),
		RedisDB:          int(util.GetIntEnv("REDIS_DB")),
		RedisQueueKey:    util.GetEnvDefault("REDIS_QUEUE_KEY", "ai_reply_queue"),
		ConsumeRate:      util.GetEnv("CONSUME_RATE"),

		StorageDriver: util.GetEnvDefault("STORAGE_DRIVER", "minio"),

		LLMProvider:    util.GetEnvDefault("LLM_PROVIDER", "openai"),
		LLMApiKey:      util.GetEnv("LLM_API_KEY"),
		LLMBaseURL:     util.GetEnvDefault("LLM_BASE_URL", "https://api.siliconflow.cn/v1"),
		LLMModel:       util.GetEnvDefault("LLM_MODEL", "deepseek-ai/DeepSeek-V3.1"),
		LLMTemperature: util.GetFloatEnvDefault("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:   int(util.GetIntEnvDefault("LLM_MAX_TOKENS", 1000)),

		TTSProvider:      util.GetEnvDefault("TTS_PROVIDER", "fish"),
		FishAudioKey:     util.GetEnv("FISH_AUDIO_TTS_KEY"),
		FishAudioBaseURL: util.GetEnvDefault("FISH_AUDIO_BASE_URL", "https://api.fish.audio"),
		FishAudioFormat:  util.GetEnvDefault("FISH_AUDIO_FORMAT", "wav"),
		PollyRegion:      util.GetEnvDefault("POLLY_REGION", util.GetEnvDefault("AWS_REGION", "us-east-1")),
		PollyVoice:       util.GetEnvDefault("POLLY_VOICE", "Zhiyu"),
		TTSTimeout:       util.GetDurationEnv("TTS_TIMEOUT", 60*time.Second),

		PipelineVariant:       util.GetEnvDefault("PIPELINE_VARIANT", "voice"),
		AbortOnPersistFailure: util.GetBoolEnv("ABORT_ON_PERSIST_FAILURE"),
		RetryWaitScale:        util.GetFloatEnvDefault("RETRY_WAIT_SCALE", 1),

		CacheType:         util.GetEnvDefault("CACHE_TYPE", "gocache"),
		CharacterCacheTTL: util.GetDurationEnv("CHARACTER_CACHE_TTL", 5*time.Minute),

		MonitorAddr:    util.GetEnvDefault("MONITOR_ADDR", ":9090"),
		HealthSchedule: util.GetEnvDefault("HEALTH_SCHEDULE", "@every 1m"),
	}
	return nil
}

// AMQPURL 返回 RabbitMQ 连接串，优先使用 RABBITMQ_URL
func (c *Config) AMQPURL() string {
	if c.RabbitMQURL != "" {
		return c.RabbitMQURL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}
