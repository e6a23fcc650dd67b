package ta

import (
	"math"

	"why-did-it-move/internal/domain"
)

// ClassifyPattern maps the cumulative percent change across the bar range to
// a trend pattern. A small cumulative change paired with large daily swings
// classifies as Mixed/Volatile instead of Consolidation.
func ClassifyPattern(bars []domain.PriceBar, cfg Config) domain.TrendPattern {
	if len(bars) < 2 || bars[0].Close == 0 {
		return domain.PatternConsolidation
	}

	cumulative := (bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close * 100

	maxDailyMove := 0.0
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close == 0 {
			continue
		}
		move := math.Abs((bars[i].Close-bars[i-1].Close)/bars[i-1].Close) * 100
		if move > maxDailyMove {
			maxDailyMove = move
		}
	}

	if math.Abs(cumulative) < cfg.TrendPct && maxDailyMove > cfg.HighVolatilityPct {
		return domain.PatternMixedVolatile
	}

	switch {
	case cumulative >= cfg.StrongTrendPct:
		return domain.PatternStrongUptrend
	case cumulative >= cfg.TrendPct:
		return domain.PatternUptrend
	case cumulative <= -cfg.StrongTrendPct:
		return domain.PatternStrongDowntrend
	case cumulative <= -cfg.TrendPct:
		return domain.PatternDowntrend
	default:
		return domain.PatternConsolidation
	}
}
