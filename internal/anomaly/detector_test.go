package anomaly

import (
	"testing"
	"time"

	"why-did-it-move/internal/domain"
)

func quietBars(n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, 0, n)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		// Tiny alternating drift keeps returns near zero without being constant.
		if i%2 == 0 {
			price *= 1.001
		} else {
			price *= 0.999
		}
		bars = append(bars, domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.004,
			Low:    price * 0.996,
			Close:  price,
			Volume: 1_000_000 + int64(i%3)*10_000,
		})
	}
	return bars
}

func TestDetectRequiresHistory(t *testing.T) {
	if _, ok := Detect(quietBars(10), DefaultConfig()); ok {
		t.Fatal("expected no detection on a short window")
	}
}

func TestDetectOutlierScoresAboveQuietDay(t *testing.T) {
	bars := quietBars(60)
	last := &bars[len(bars)-1]
	last.Close = last.Open * 0.85
	last.Low = last.Close * 0.99
	last.Volume = 20_000_000

	outlier, ok := Detect(bars, DefaultConfig())
	if !ok {
		t.Fatal("expected a detection on a full window")
	}

	quiet, ok := Detect(quietBars(60), DefaultConfig())
	if !ok {
		t.Fatal("expected a detection on a full window")
	}

	if outlier.Score <= quiet.Score {
		t.Fatalf("expected crash day to score above a quiet day: %v vs %v", outlier.Score, quiet.Score)
	}
	if !outlier.Unusual {
		t.Fatalf("expected a 15%% drop on 20x volume to be flagged, score %v", outlier.Score)
	}
}
