package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	ServerPort  int
	APIKey      string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	LLMTimeoutSecs    int
	LLMMaxAttempts    int
	LLMRequestsPerSec float64

	NewsAPIKey string

	HistoryDays     int
	NewsWindowDays  int
	MarketReference string
	CacheTTLHours   int

	TelegramBotToken string

	SSHHost        string
	SSHPort        int
	SSHHostKeyPath string
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           os.Getenv("API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		NewsAPIKey:       os.Getenv("NEWSAPI_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, history persistence disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.OpenRouterAPIKey == "" {
		log.Println("Warning: OPENROUTER_API_KEY not set, explanations will fail")
	}
	if cfg.NewsAPIKey == "" {
		log.Println("Warning: NEWSAPI_KEY not set, news evidence disabled")
	}

	cfg.ServerPort = 8080
	if v := strings.TrimSpace(os.Getenv("SERVER_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ServerPort = n
		}
	}

	cfg.OpenRouterBaseURL = strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL"))
	if cfg.OpenRouterBaseURL == "" {
		cfg.OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	}

	cfg.OpenRouterModel = strings.TrimSpace(os.Getenv("OPENROUTER_MODEL"))
	if cfg.OpenRouterModel == "" {
		cfg.OpenRouterModel = "meta-llama/llama-3.1-70b-instruct"
	}

	cfg.LLMTimeoutSecs = 30
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLMTimeoutSecs = n
		}
	}

	cfg.LLMMaxAttempts = 3
	if v := strings.TrimSpace(os.Getenv("LLM_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLMMaxAttempts = n
		}
	}

	cfg.LLMRequestsPerSec = 1
	if v := strings.TrimSpace(os.Getenv("LLM_REQUESTS_PER_SEC")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.LLMRequestsPerSec = n
		}
	}

	cfg.HistoryDays = 90
	if v := strings.TrimSpace(os.Getenv("HISTORY_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryDays = n
		}
	}

	cfg.NewsWindowDays = 3
	if v := strings.TrimSpace(os.Getenv("NEWS_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NewsWindowDays = n
		}
	}

	cfg.MarketReference = strings.TrimSpace(os.Getenv("MARKET_REFERENCE"))
	if cfg.MarketReference == "" {
		cfg.MarketReference = "SPY"
	}

	cfg.CacheTTLHours = 24
	if v := strings.TrimSpace(os.Getenv("CACHE_TTL_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLHours = n
		}
	}

	cfg.SSHHost = strings.TrimSpace(os.Getenv("SSH_HOST"))
	if cfg.SSHHost == "" {
		cfg.SSHHost = "0.0.0.0"
	}

	cfg.SSHPort = 2222
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}

	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/why_did_it_move_ed25519"
	}

	return cfg
}
