package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"why-did-it-move/internal/bot"
	"why-did-it-move/internal/cache"
	"why-did-it-move/internal/config"
	"why-did-it-move/internal/db"
	"why-did-it-move/internal/explain"
	"why-did-it-move/internal/handler"
	"why-did-it-move/internal/provider"
	"why-did-it-move/internal/repository"
	"why-did-it-move/internal/service"
	"why-did-it-move/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "why-did-it-move/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newExplanationRepoFunc = repository.NewExplanationRepository
	newBarProviderFunc     = func(tracer trace.Tracer) service.BarProvider {
		return provider.NewYahooProvider(tracer)
	}
	newNewsProviderFunc = func(tracer trace.Tracer, apiKey string) service.NewsProvider {
		if apiKey == "" {
			return nil
		}
		return provider.NewNewsAPIProvider(tracer, apiKey)
	}
	newLLMClientFunc       = explain.NewOpenAIClient
	newGeneratorFunc       = explain.NewGenerator
	newExplainServiceFunc  = service.NewExplainService
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Why Did It Move API
// @version         1.0
// @description     Post-hoc stock price move explanations backed by an LLM.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repository and run migrations
	explRepo := newExplanationRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		if err := explRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	// Providers and the explanation generator
	barProvider := newBarProviderFunc(tracer)
	newsProvider := newNewsProviderFunc(tracer, cfg.NewsAPIKey)

	llm := newLLMClientFunc(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
	llm = explain.NewRateLimitedClient(llm, cfg.LLMRequestsPerSec, 1)
	policy := explain.DefaultRetryPolicy()
	policy.MaxAttempts = uint64(cfg.LLMMaxAttempts)
	policy.AttemptTimeout = time.Duration(cfg.LLMTimeoutSecs) * time.Second
	generator := newGeneratorFunc(tracer, llm, cfg.OpenRouterModel, policy)

	var repo service.ExplanationRepository
	if db.Pool != nil {
		repo = explRepo
	}
	var redisClient service.RedisClient
	if cache.Client != nil {
		redisClient = cache.Client
	}

	explainService := newExplainServiceFunc(tracer, barProvider, newsProvider, generator, repo, redisClient, service.Config{
		HistoryDays:     cfg.HistoryDays,
		NewsWindowDays:  cfg.NewsWindowDays,
		MarketReference: cfg.MarketReference,
		CacheTTL:        time.Duration(cfg.CacheTTLHours) * time.Hour,
	})

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(explainService)

	// Create handlers and routes
	h := newHandlerFunc(tracer, explainService)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("why-did-it-move"))
	r.Use(handler.APIKeyAuth(cfg.APIKey))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
