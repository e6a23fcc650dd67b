package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"why-did-it-move/internal/cache"
	"why-did-it-move/internal/config"
	"why-did-it-move/internal/db"
	"why-did-it-move/internal/explain"
	"why-did-it-move/internal/provider"
	"why-did-it-move/internal/repository"
	"why-did-it-move/internal/service"
	"why-did-it-move/internal/tui"
	"why-did-it-move/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	gossh "golang.org/x/crypto/ssh"
	"go.opentelemetry.io/otel/trace"
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
	newLLMClientFunc      = explain.NewOpenAIClient
	newGeneratorFunc      = explain.NewGenerator
	newExplainServiceFunc = service.NewExplainService
	newWishServerFunc     = wish.NewServer
	setupSignalNotify     = ossignal.Notify
	waitForSignalFunc     = func(quit <-chan os.Signal) { <-quit }
)

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

	// Repository and pipeline services
	explRepo := newExplanationRepoFunc(db.Pool, tracer)

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

	// Build Wish SSH server. Sessions are read-only, so any key is accepted
	// and only its fingerprint is logged.
	addr := fmt.Sprintf("%s:%d", cfg.SSHHost, cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			log.Printf("SSH session: user=%s fingerprint=%s", ctx.User(), gossh.FingerprintSHA256(key))
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				svc := tui.Services{
					Explainer: explainService,
					Username:  s.User(),
				}

				model := tui.NewAppModel(svc)
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create SSH server: %v", err)
	}

	if srv != nil {
		go func() {
			log.Printf("SSH server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("SSH server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SSH server shutdown error: %v", err)
		}
	}

	log.Println("SSH server exited")
}
