package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENROUTER_MODEL", "")
	t.Setenv("HISTORY_DAYS", "")

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.OpenRouterBaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("expected default base url, got %s", cfg.OpenRouterBaseURL)
	}
	if cfg.HistoryDays != 90 || cfg.NewsWindowDays != 3 {
		t.Fatalf("unexpected window defaults: %+v", cfg)
	}
	if cfg.MarketReference != "SPY" {
		t.Fatalf("expected default market reference SPY, got %s", cfg.MarketReference)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("OPENROUTER_API_KEY", "key")
	t.Setenv("OPENROUTER_MODEL", "openai/gpt-4o-mini")
	t.Setenv("HISTORY_DAYS", "120")
	t.Setenv("LLM_MAX_ATTEMPTS", "5")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.OpenRouterModel != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected model: %s", cfg.OpenRouterModel)
	}
	if cfg.HistoryDays != 120 || cfg.LLMMaxAttempts != 5 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}

	t.Setenv("HISTORY_DAYS", "bad")
	cfg = Load()
	if cfg.HistoryDays != 90 {
		t.Fatalf("invalid history days should fall back to default, got %d", cfg.HistoryDays)
	}
}
