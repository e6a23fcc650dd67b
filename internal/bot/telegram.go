package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"why-did-it-move/internal/domain"
)

// Explainer is the pipeline surface the bot consumes.
type Explainer interface {
	Explain(ctx context.Context, symbol, date string) (*domain.Explanation, error)
	History(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error)
}

func StartTelegramBot(explainer Explainer) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/explain", func(c tele.Context) error {
		args := c.Args()
		if len(args) < 2 {
			return c.Send("Usage: /explain AAPL 2024-05-10")
		}
		symbol := strings.ToUpper(args[0])
		date := args[1]

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		expl, err := explainer.Explain(ctx, symbol, date)
		if err != nil {
			return c.Send(fmt.Sprintf("Could not explain %s on %s: %v", symbol, date, err))
		}
		return c.Send(FormatExplanation(expl))
	})

	b.Handle("/history", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /history AAPL")
		}
		symbol := strings.ToUpper(args[0])

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		history, err := explainer.History(ctx, symbol, 5)
		if err != nil {
			return c.Send(fmt.Sprintf("Could not load history for %s: %v", symbol, err))
		}
		if len(history) == 0 {
			return c.Send(fmt.Sprintf("No stored explanations for %s yet.", symbol))
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Recent explanations for %s:\n", symbol))
		for _, e := range history {
			sb.WriteString(fmt.Sprintf("\n%s (%+.2f%%, %s)\n%s\n", e.Date, e.PriceChangePercent, e.MoveClassification, e.PrimaryDriver))
		}
		return c.Send(sb.String())
	})

	log.Println("Telegram bot started")
	go b.Start()
}

// FormatExplanation renders one explanation as a plain-text message.
func FormatExplanation(e *domain.Explanation) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s on %s: %+.2f%% (%s)\n\n", e.Symbol, e.Date, e.PriceChangePercent, e.MoveClassification))
	sb.WriteString(e.Explanation)
	if e.PrimaryDriver != "" {
		sb.WriteString("\n\nPrimary driver: " + e.PrimaryDriver)
	}
	for _, f := range e.SupportingFactors {
		sb.WriteString("\n- " + f)
	}
	sb.WriteString(fmt.Sprintf("\n\nConfidence: %.0f%%", e.ConfidenceScore*100))
	if e.UncertaintyNote != "" {
		sb.WriteString("\nNote: " + e.UncertaintyNote)
	}
	return sb.String()
}
