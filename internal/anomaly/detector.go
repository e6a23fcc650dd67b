package anomaly

import (
	"math"

	"github.com/narumiruna/go-iforest/pkg/iforest"

	"why-did-it-move/internal/domain"
)

// Config bounds the detector's history window and decision threshold.
type Config struct {
	MinHistory int     // bars required before a detection is attempted
	Threshold  float64 // isolation score above which a day is flagged
}

func DefaultConfig() Config {
	return Config{
		MinHistory: 30,
		Threshold:  0.6,
	}
}

// Detection is the score for the final bar in a window. Score is the raw
// isolation score, higher meaning more unusual.
type Detection struct {
	Unusual bool
	Score   float64
}

// Detect fits an isolation forest over the per-day return, intraday range,
// and volume profile of the window and scores the last bar against it. The
// second return is false when the window is too short to judge.
func Detect(bars []domain.PriceBar, cfg Config) (Detection, bool) {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = DefaultConfig().MinHistory
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if len(bars) < cfg.MinHistory+1 {
		return Detection{}, false
	}

	samples := featureMatrix(bars)
	forest := iforest.New()
	forest.Fit(samples)

	scores := forest.Score(samples)
	score := scores[len(scores)-1]
	return Detection{Unusual: score > cfg.Threshold, Score: score}, true
}

// featureMatrix derives one row per bar after the first: close-to-close
// return, intraday range relative to open, and log volume.
func featureMatrix(bars []domain.PriceBar) [][]float64 {
	samples := make([][]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]

		ret := 0.0
		if prev.Close != 0 {
			ret = (cur.Close - prev.Close) / prev.Close * 100
		}
		rng := 0.0
		if cur.Open != 0 {
			rng = (cur.High - cur.Low) / cur.Open * 100
		}
		vol := 0.0
		if cur.Volume > 0 {
			vol = math.Log1p(float64(cur.Volume))
		}
		samples = append(samples, []float64{ret, rng, vol})
	}
	return samples
}
