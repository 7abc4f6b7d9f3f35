package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "PostcardAgent/internal/handler"
	"PostcardAgent/internal/pipeline"
	"PostcardAgent/internal/store"
	"PostcardAgent/internal/worker"
	"PostcardAgent/pkg/cache"
	"PostcardAgent/pkg/config"
	"PostcardAgent/pkg/i18n"
	"PostcardAgent/pkg/llm"
	"PostcardAgent/pkg/logger"
	"PostcardAgent/pkg/metrics"
	"PostcardAgent/pkg/queue"
	"PostcardAgent/pkg/scheduler"
	stores "PostcardAgent/pkg/storage"
	"PostcardAgent/pkg/tts"
	"PostcardAgent/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	publish := flag.String("publish", "", "publish one JSON message to the queue and exit")
	flag.Parse()

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *publish != "" {
		if err := publishOne(cfg, []byte(*publish)); err != nil {
			logger.Error("publish failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		logger.Error("agent exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func openQueue(cfg *config.Config) (queue.Queue, error) {
	name := cfg.RabbitMQQueue
	if cfg.QueueDriver == "redis" {
		name = cfg.RedisQueueKey
	}
	return queue.Open(queue.Options{
		Driver:        cfg.QueueDriver,
		AMQPURL:       cfg.AMQPURL(),
		Name:          name,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	})
}

func publishOne(cfg *config.Config, body []byte) error {
	q, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Publish(ctx, body); err != nil {
		return err
	}
	logger.Info("message published", zap.Int("bytes", len(body)))
	return nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()

	// 数据库
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	charCache, err := cache.NewCache(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			Prefix:       "postcard:",
		},
		Local: cache.LocalConfig{
			MaxSize:           1000,
			DefaultExpiration: cfg.CharacterCacheTTL,
			CleanupInterval:   10 * time.Minute,
		},
		LocalExpiration: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer charCache.Close()

	st := store.New(db, store.WithCache(charCache, cfg.CacheType, cfg.CharacterCacheTTL), store.WithMetrics(m))
	if err := st.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// 启动检查
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("database check: %w", err)
	}
	n, err := st.CountCharacters(ctx)
	if err != nil {
		return fmt.Errorf("character check: %w", err)
	}
	logger.Info("database ready", zap.String("driver", cfg.DBDriver), zap.Int64("characters", n))

	q, err := openQueue(cfg)
	if err != nil {
		return fmt.Errorf("queue check: %w", err)
	}
	defer q.Close()

	runner, err := buildRunner(cfg, st, m)
	if err != nil {
		return err
	}

	// 周期性健康探测
	probe := scheduler.NewProbe("characters", func(ctx context.Context) error {
		_, err := st.CountCharacters(ctx)
		return err
	})
	probe.Run(ctx)
	cr := scheduler.NewCron(nil)
	if _, err := cr.Add(cfg.HealthSchedule, probe); err != nil {
		return fmt.Errorf("schedule health probe: %w", err)
	}
	cr.Start()
	defer cr.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.MonitorAddr,
		Handler:           handlers.NewHandlers(st, m, probe).NewEngine(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("monitor listening", zap.String("addr", cfg.MonitorAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	throttle, err := worker.NewThrottle(cfg.ConsumeRate, nil)
	if err != nil {
		return err
	}
	w := worker.New(q, runner, worker.WithThrottle(throttle), worker.WithMetrics(m))
	logger.Info("waiting for messages",
		zap.String("queue_driver", cfg.QueueDriver),
		zap.String("variant", string(runner.Variant())),
	)
	return w.Run(ctx)
}

func buildRunner(cfg *config.Config, st *store.Store, m *metrics.Metrics) (*pipeline.Runner, error) {
	variant, err := pipeline.ParseVariant(cfg.PipelineVariant)
	if err != nil {
		return nil, err
	}
	lg := logger.NewLogrus(cfg.Log)

	model, err := llm.New(cfg.LLMProvider, cfg.LLMApiKey, cfg.LLMBaseURL, lg)
	if err != nil {
		return nil, err
	}

	texts, err := i18n.NewI18nSupport(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	deps := pipeline.Deps{
		Characters: st,
		Records:    st,
		LLM:        model,
		Samples:    pipeline.NewHTTPSampleFetcher(cfg.TTSTimeout),
	}
	if variant != pipeline.VariantSimple {
		speech, err := tts.New(tts.Options{
			Provider:    cfg.TTSProvider,
			APIKey:      cfg.FishAudioKey,
			BaseURL:     cfg.FishAudioBaseURL,
			Format:      cfg.FishAudioFormat,
			PollyRegion: cfg.PollyRegion,
			PollyVoice:  cfg.PollyVoice,
			Timeout:     cfg.TTSTimeout,
		}, lg)
		if err != nil {
			return nil, err
		}
		objects, err := stores.NewStore(cfg.StorageDriver)
		if err != nil {
			return nil, err
		}
		deps.TTS = speech
		deps.Objects = objects
	}

	return pipeline.NewRunner(deps, pipeline.Options{
		Variant:               variant,
		Model:                 cfg.LLMModel,
		Temperature:           float32(cfg.LLMTemperature),
		MaxTokens:             cfg.LLMMaxTokens,
		Apology:               texts.TWithDefaultLang(i18n.KeyApology, nil),
		AbortOnPersistFailure: cfg.AbortOnPersistFailure,
		RetryWaitScale:        cfg.RetryWaitScale,
		Metrics:               m,
	})
}
