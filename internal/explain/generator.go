package explain

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"why-did-it-move/internal/domain"
)

// InvocationState tracks one model invocation. Parsed, ParseFailed, and
// ServiceUnavailable are terminal; only the bounded low-level retry loop runs
// inside Invoking.
type InvocationState string

const (
	StateIdle               InvocationState = "idle"
	StateInvoking           InvocationState = "invoking"
	StateParsed             InvocationState = "parsed"
	StateParseFailed        InvocationState = "parse_failed"
	StateServiceUnavailable InvocationState = "service_unavailable"
)

// Result carries the parsed fields plus the terminal state of the invocation.
// A ParseFailed result is degraded, not fabricated: empty narrative,
// confidence zero, explicit uncertainty note.
type Result struct {
	State InvocationState
	Parsed
}

// Generator turns an evidence document into a structured explanation through
// one bounded model invocation.
type Generator struct {
	tracer trace.Tracer
	llm    LLMClient
	model  string
	policy RetryPolicy
}

func NewGenerator(tracer trace.Tracer, llm LLMClient, model string, policy RetryPolicy) *Generator {
	if model == "" {
		model = "meta-llama/llama-3.1-70b-instruct"
	}
	return &Generator{
		tracer: tracer,
		llm:    llm,
		model:  model,
		policy: policy.normalize(),
	}
}

// Generate invokes the model once (with internal bounded retries) and parses
// the response. Exhausted retries surface ErrServiceUnavailable; an
// unparseable response returns a degraded result and no error.
func (g *Generator) Generate(ctx context.Context, symbol, date string, doc domain.EvidenceDocument) (Result, error) {
	ctx, span := g.tracer.Start(ctx, "explain.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("date", date),
		attribute.Int("evidence.size", doc.Size()),
	)

	raw, err := g.invoke(ctx, BuildPrompt(symbol, date, doc))
	if err != nil {
		span.RecordError(err)
		return Result{State: StateServiceUnavailable},
			fmt.Errorf("explanation for %s on %s: %w", symbol, date, domain.ErrServiceUnavailable)
	}

	parsed, err := Parse(raw)
	if err != nil {
		if errors.Is(err, domain.ErrMissingRequiredField) {
			log.Printf("unparseable model response for %s %s: %v", symbol, date, err)
			return Result{
				State:  StateParseFailed,
				Parsed: Parsed{Classification: domain.MoveMixedVolatile, UncertaintyNote: noteMissingField},
			}, nil
		}
		span.RecordError(err)
		return Result{State: StateParseFailed}, err
	}

	return Result{State: StateParsed, Parsed: parsed}, nil
}

func (g *Generator) invoke(ctx context.Context, prompt string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "explain.llm-call")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	attempt := 0
	operation := func() (string, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, g.policy.AttemptTimeout)
		defer cancel()

		completion, err := g.llm.CreateChatCompletion(attemptCtx, openai.ChatCompletionNewParams{
			Model: g.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			if !retryable(err) {
				return "", backoff.Permanent(err)
			}
			log.Printf("llm attempt %d failed: %v", attempt, err)
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", backoff.Permanent(errors.New("no choices in model response"))
		}
		return completion.Choices[0].Message.Content, nil
	}

	var reply string
	err := backoff.Retry(func() error {
		var opErr error
		reply, opErr = operation()
		return opErr
	}, g.policy.backOff(ctx))
	if err != nil {
		return "", err
	}

	span.SetAttributes(
		attribute.Int("llm.reply_length", len(reply)),
		attribute.Int("llm.attempts", attempt),
	)
	return reply, nil
}
