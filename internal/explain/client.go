package explain

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// LLMClient abstracts the OpenAI-compatible chat completions API for
// testability. OpenRouter speaks the same protocol behind a base URL.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type openaiClient struct {
	client openai.Client
}

// NewOpenAIClient builds a client against the official SDK. An empty baseURL
// targets OpenAI directly; pass the OpenRouter endpoint to route through it.
func NewOpenAIClient(apiKey, baseURL string) LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiClient{client: openai.NewClient(opts...)}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// rateLimitedClient gates calls through a token bucket so burst traffic does
// not trip upstream quota errors in the first place.
type rateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps an LLMClient with a requests-per-second cap.
func NewRateLimitedClient(inner LLMClient, rps float64, burst int) LLMClient {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedClient{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (c *rateLimitedClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.CreateChatCompletion(ctx, params)
}
