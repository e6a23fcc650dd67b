package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"why-did-it-move/internal/bot"
	"why-did-it-move/internal/cache"
	"why-did-it-move/internal/config"
	"why-did-it-move/internal/db"
	"why-did-it-move/internal/explain"
	"why-did-it-move/internal/provider"
	"why-did-it-move/internal/repository"
	"why-did-it-move/internal/service"
	"why-did-it-move/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
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
	runServerFunc         = func(ctx context.Context, server *mcp.Server) error {
		return server.Run(ctx, &mcp.StdioTransport{})
	}
)

type explainMoveArgs struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol, e.g. AAPL"`
	Date   string `json:"date" jsonschema:"trading day in YYYY-MM-DD form"`
}

type historyArgs struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol, e.g. AAPL"`
	Limit  int    `json:"limit,omitempty" jsonschema:"max entries to return, default 20"`
}

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MCP clients own stdout, so logs go to stderr only.
	log.SetOutput(os.Stderr)

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

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

	server := newMCPServer(explainService)

	log.Println("MCP server listening on stdio")
	if err := runServerFunc(ctx, server); err != nil {
		log.Fatalf("MCP server stopped: %v", err)
	}
}

// newMCPServer exposes the explanation pipeline as MCP tools.
func newMCPServer(explainer bot.Explainer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "why-did-it-move",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "explain_move",
		Description: "Explain why a stock moved on a given trading day",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args explainMoveArgs) (*mcp.CallToolResult, any, error) {
		expl, err := explainer.Explain(ctx, strings.ToUpper(args.Symbol), args.Date)
		if err != nil {
			return textResult(fmt.Sprintf("could not explain %s on %s: %v", args.Symbol, args.Date, err)), nil, nil
		}
		return textResult(bot.FormatExplanation(expl)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "explanation_history",
		Description: "List previously generated move explanations for a symbol",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args historyArgs) (*mcp.CallToolResult, any, error) {
		history, err := explainer.History(ctx, strings.ToUpper(args.Symbol), args.Limit)
		if err != nil {
			return textResult(fmt.Sprintf("could not load history for %s: %v", args.Symbol, err)), nil, nil
		}
		if len(history) == 0 {
			return textResult(fmt.Sprintf("no stored explanations for %s", args.Symbol)), nil, nil
		}

		var sb strings.Builder
		for _, e := range history {
			fmt.Fprintf(&sb, "%s %s %+.2f%% (%s): %s\n", e.Symbol, e.Date, e.PriceChangePercent, e.MoveClassification, e.PrimaryDriver)
		}
		return textResult(sb.String()), nil, nil
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
