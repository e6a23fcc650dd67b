package news

import (
	"sort"
	"strings"
	"time"

	"why-did-it-move/internal/domain"
)

// RawItem is a headline as fetched by a news collaborator, before scoring.
type RawItem struct {
	Title       string
	Source      string
	Description string
	PublishedAt time.Time
}

// Config carries the scorer's tunable cutoffs.
type Config struct {
	PositiveThreshold float64 // polarity above this is "positive"
	NegativeThreshold float64 // polarity below this is "negative"
	MaxItems          int     // bound on the ranked output set
}

func DefaultConfig() Config {
	return Config{
		PositiveThreshold: 0.1,
		NegativeThreshold: -0.1,
		MaxItems:          10,
	}
}

var bullishTokens = []string{
	"beat", "beats", "surge", "rally", "upgrade", "record", "growth",
	"profit", "approved", "buyback", "raises", "outperform", "strong demand",
	"breakthrough", "wins",
}

var bearishTokens = []string{
	"miss", "misses", "plunge", "lawsuit", "investigation", "recall",
	"downgrade", "layoff", "decline", "fraud", "rejected", "cuts", "probe",
	"weak demand", "selloff", "warning",
}

// Polarity scores combined title+description text into [-1,1] with a keyword
// heuristic. Empty text is neutral.
func Polarity(title, description string) float64 {
	text := strings.ToLower(strings.TrimSpace(title + " " + description))
	if text == "" {
		return 0
	}
	bull := countMatches(text, bullishTokens)
	bear := countMatches(text, bearishTokens)
	raw := float64(bull-bear) / float64(bull+bear+1)
	return clamp(raw, -1, 1)
}

func (c Config) label(polarity float64) domain.SentimentLabel {
	switch {
	case polarity > c.PositiveThreshold:
		return domain.SentimentPositive
	case polarity < c.NegativeThreshold:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// Score filters, deduplicates, scores, and ranks raw news for one instrument.
// An empty result is valid; callers render it as an explicit no-data section.
func Score(items []RawItem, symbol string, aliases []string, cfg Config) []domain.NewsItem {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}

	needles := make([]string, 0, len(aliases)+1)
	needles = append(needles, strings.ToLower(strings.TrimSpace(symbol)))
	for _, a := range aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			needles = append(needles, a)
		}
	}

	seen := make(map[string]struct{}, len(items))
	scored := make([]domain.NewsItem, 0, len(items))
	for _, raw := range items {
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			continue
		}

		text := strings.ToLower(title + " " + raw.Description)
		if !containsAny(text, needles) {
			continue
		}

		key := strings.ToLower(title) + "|" + strings.ToLower(strings.TrimSpace(raw.Source)) + "|" + raw.PublishedAt.UTC().Format("2006-01-02")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		polarity := Polarity(title, raw.Description)
		scored = append(scored, domain.NewsItem{
			Title:       title,
			Source:      strings.TrimSpace(raw.Source),
			Description: strings.TrimSpace(raw.Description),
			PublishedAt: raw.PublishedAt.UTC(),
			Polarity:    polarity,
			Sentiment:   cfg.label(polarity),
			Credibility: Credibility(raw.Source),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Credibility != scored[j].Credibility {
			return scored[i].Credibility > scored[j].Credibility
		}
		return scored[i].PublishedAt.After(scored[j].PublishedAt)
	})

	if len(scored) > cfg.MaxItems {
		scored = scored[:cfg.MaxItems]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func countMatches(text string, tokens []string) int {
	count := 0
	for _, token := range tokens {
		if strings.Contains(text, token) {
			count++
		}
	}
	return count
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
