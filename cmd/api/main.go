package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iago/pptx-generator-back/internal/ai"
	"github.com/iago/pptx-generator-back/internal/cache"
	"github.com/iago/pptx-generator-back/internal/config"
	"github.com/iago/pptx-generator-back/internal/deck"
	httpserver "github.com/iago/pptx-generator-back/internal/http"
	"github.com/iago/pptx-generator-back/internal/http/handlers"
	"github.com/iago/pptx-generator-back/internal/http/middleware"
	"github.com/iago/pptx-generator-back/internal/logging"
	"github.com/iago/pptx-generator-back/internal/pipeline"
	"github.com/iago/pptx-generator-back/internal/queue"
	"github.com/iago/pptx-generator-back/internal/repository"
	"github.com/iago/pptx-generator-back/internal/retrieval"
	"github.com/iago/pptx-generator-back/internal/service"
	"github.com/iago/pptx-generator-back/internal/slides"
	"github.com/iago/pptx-generator-back/internal/storage"
	"github.com/iago/pptx-generator-back/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	dotenvErr := config.LoadDotEnv(".env.local", ".env")
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	if dotenvErr != nil {
		logger.Warn().Err(dotenvErr).Msg("failed loading .env files")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeCloser := setupStore(ctx, cfg, logger)
	defer storeCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	files, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Str("output_dir", cfg.OutputDir).Msg("failed to prepare output directory")
	}

	generation, err := setupGeneration(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generation service")
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Store: store,
		Retriever: retrieval.NewRetriever(retrieval.Config{
			Timeout:   time.Duration(cfg.FetchTimeoutMS) * time.Millisecond,
			MaxBytes:  cfg.FetchMaxBytes,
			MaxTokens: cfg.ContentMaxTokens,
		}, logger),
		Generator: generation,
		Persister: slides.NewPersister(files, logger),
		Renderer: deck.NewEngine(deck.Config{
			Layout: deck.LayoutConfig{
				MaxCards:     cfg.DeckMaxCards,
				BulletBudget: cfg.DeckBulletBudget,
			},
		}, logger),
		Dirs:        files,
		LogoPath:    cfg.LogoPath,
		Logger:      logger,
		Development: cfg.IsDevelopment(),
	})

	pool := worker.NewPool(consumer, orchestrator, worker.Config{Workers: cfg.WorkerCount}, logger)
	pool.Start(ctx)

	sweeper := repository.NewSweeper(store, files, cfg.JobMaxAge(), cfg.SweepInterval(), logger)
	sweeper.Start(ctx)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	jobsService := service.NewJobsService(store, producer, logger)
	api := handlers.NewAPI(jobsService, handlers.Options{
		Development:  cfg.IsDevelopment(),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:         api,
		Logger:      logger,
		AuthToken:   cfg.AuthToken,
		CORSOrigins: cfg.CORSAllowedOrigins,
		RateLimiter: limiter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("provider", cfg.AIProvider).Msg("api listening")
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	sweeper.Stop()
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("workers did not drain before timeout")
	}
}

func setupStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (repository.JobStore, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not configured, using in-memory job store")
		return repository.NewMemoryJobStore(), func() {}
	}

	pgStore, err := repository.NewPostgresJobStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize postgres job store, fallback to memory")
		return repository.NewMemoryJobStore(), func() {}
	}
	logger.Info().Msg("postgres job store initialized")
	return pgStore, pgStore.Close
}

func setupQueue(ctx context.Context, cfg config.Config, logger zerolog.Logger) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("REDIS_ADDR not configured, using local queue")
		local := queue.NewLocalQueue(cfg.QueueCapacity, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Stream:    cfg.RedisStream,
		DLQStream: cfg.RedisDLQ,
		Group:     cfg.RedisGroup,
		Consumer:  cfg.RedisConsumer,
		Capacity:  int64(cfg.QueueCapacity),
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize redis streams queue, fallback to local")
		local := queue.NewLocalQueue(cfg.QueueCapacity, logger)
		return local, local, func() {}
	}
	logger.Info().Str("stream", cfg.RedisStream).Msg("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}

func setupGeneration(cfg config.Config, logger zerolog.Logger) (*service.GenerationService, error) {
	timeout := time.Duration(cfg.AITimeoutMS) * time.Millisecond
	provider := strings.ToLower(strings.TrimSpace(cfg.AIProvider))

	var client ai.TextGenerator
	switch provider {
	case "openai":
		client = ai.NewOpenAIClient(ai.OpenAIClientConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Timeout:    timeout,
			MaxRetries: cfg.AIMaxRetries,
		})
	case "openrouter":
		client = ai.NewOpenRouterClient(ai.OpenRouterClientConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Timeout:    timeout,
			MaxRetries: cfg.AIMaxRetries,
			SiteURL:    cfg.OpenRouterSiteURL,
			AppName:    cfg.OpenRouterAppName,
		})
	default:
		provider = "anthropic"
		client = ai.NewAnthropicClient(ai.AnthropicClientConfig{
			APIKey:     cfg.AnthropicAPIKey,
			BaseURL:    cfg.AnthropicBaseURL,
			Timeout:    timeout,
			MaxRetries: cfg.AIMaxRetries,
		})
	}
	if !client.Available() {
		logger.Warn().Str("provider", provider).Msg("no API key configured, generation jobs will fail")
	}

	responseCache, err := cache.NewResponseCache(cache.Config{
		TTL:        time.Duration(cfg.ResponseCacheTTLSeconds) * time.Second,
		MaxEntries: cfg.ResponseCacheMaxEntries,
	})
	if err != nil {
		return nil, err
	}

	return service.NewGenerationService(service.GenerationDependencies{
		Router: ai.NewModelRouter(ai.ModelRouterConfig{
			Provider:          provider,
			AnalysisPrimary:   cfg.AIModelAnalysisPrimary,
			AnalysisFallback:  cfg.AIModelAnalysisFallback,
			NarrativePrimary:  cfg.AIModelNarrativePrimary,
			NarrativeFallback: cfg.AIModelNarrativeFallback,
			SlidesPrimary:     cfg.AIModelSlidesPrimary,
			SlidesFallback:    cfg.AIModelSlidesFallback,
		}),
		Client: ai.NewBreakerGenerator(client, ai.BreakerConfig{
			Name:        provider,
			MaxFailures: uint32(cfg.AIBreakerMaxFailures),
			OpenTimeout: time.Duration(cfg.AIBreakerOpenSeconds) * time.Second,
		}),
		Cache:      responseCache,
		PromptsDir: cfg.PromptsDir,
		Logger:     logger,
	}), nil
}
