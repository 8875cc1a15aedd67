package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	chatinfra "github.com/mairble/mairble-backend-go/internal/chat/infra"
	chatport "github.com/mairble/mairble-backend-go/internal/chat/port"
	chatservice "github.com/mairble/mairble-backend-go/internal/chat/service"
	"github.com/mairble/mairble-backend-go/internal/config"
	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/handler"
	"github.com/mairble/mairble-backend-go/internal/infra/cache"
	"github.com/mairble/mairble-backend-go/internal/infra/client"
	"github.com/mairble/mairble-backend-go/internal/infra/llm"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
	"github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/prompts"
	"github.com/mairble/mairble-backend-go/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Bool("has_pricelabs_key", cfg.PriceLabsAPIKey != ""),
		zap.Bool("has_llm_key", cfg.LLMAPIKey() != ""),
		zap.Bool("demo_fallback", cfg.DemoFallback),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(context.Background(), cfg.OTLPEndpoint, "mairble-backend", cfg.Environment)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	var (
		listingCache port.Cache[[]domain.Listing]
		cacheKind    = "memory"
		checks       = map[string]handler.Checker{}
	)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
		} else {
			defer rdb.Close()
			listingCache = cache.NewRedis[[]domain.Listing](rdb, cfg.CacheTTL, cache.WithLogger(logger))
			cacheKind = "redis"
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}
	if listingCache == nil {
		mem := cache.New[[]domain.Listing](cfg.CacheTTL)
		defer mem.Close()
		listingCache = mem
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Clients ---
	httpClient := observability.NewTracedHTTPClient(cfg.HTTPTimeout)

	priceLabs := client.NewPriceLabsClient(
		httpClient,
		cfg.PriceLabsBaseURL,
		cfg.PriceLabsAPIKey,
		resilience.NewCircuitBreaker("pricelabs", metrics.BreakerStateChange),
		resilienceCfg,
		logger,
	)

	baseURL := cfg.OpenAIBaseURL
	if cfg.LLMProvider == llm.ProviderAnthropic {
		baseURL = cfg.AnthropicBaseURL
	}
	llmClient, err := llm.New(llm.Options{
		Provider:   cfg.LLMProvider,
		APIKey:     cfg.LLMAPIKey(),
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		Breaker:    resilience.NewCircuitBreaker(cfg.LLMProvider, metrics.BreakerStateChange),
		Resilience: resilienceCfg,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("LLM not configured, analysis and chat will report 503", zap.Error(err))
		llmClient = nil
	}

	// --- Services ---
	catalog := prompts.MustLoad()
	keySetting := strings.ToUpper(cfg.LLMProvider) + "_API_KEY"

	pricingSvc := service.NewPricing(
		priceLabs,
		llmClient,
		listingCache,
		catalog,
		bulkhead,
		metrics,
		logger,
		service.PricingOptions{
			ListingID:          cfg.ListingID,
			PMS:                cfg.PMS,
			AnalysisModel:      cfg.AnalysisModel,
			LLMKeySetting:      keySetting,
			DemoFallback:       cfg.DemoFallback,
			MaxNights:          cfg.MaxNights,
			FetchWindowDays:    cfg.FetchWindowDays,
			OpeningsWindowDays: cfg.OpeningsWindowDays,
		},
	)

	chatSvc := chatservice.NewChatService(
		llmClient,
		[]chatport.Tool{chatinfra.NewOpeningsTool(pricingSvc, pricingSvc.OpeningsWindowDays())},
		catalog,
		pricingSvc,
		metrics,
		logger,
		chatservice.Options{
			Model:              cfg.ChatModel,
			MaxToolRounds:      cfg.MaxToolRounds,
			ListingID:          cfg.ListingID,
			PMS:                cfg.PMS,
			OpeningsWindowDays: cfg.OpeningsWindowDays,
			LLMKeySetting:      keySetting,
		},
	)

	// --- Router ---
	router := handler.NewRouter(pricingSvc, chatSvc, metrics, logger, handler.Options{
		Config: cfg,
		Cache:  cacheKind,
		Checks: checks,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // analyze waits on several model calls
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
