package domain

import "time"

// PriceBar is one trading day's OHLCV for an instrument. Sequences handed to
// the pipeline are ordered by date, unique by date.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// TrendPattern classifies a multi-day price pattern over a range.
type TrendPattern string

const (
	PatternStrongUptrend   TrendPattern = "Strong Uptrend"
	PatternUptrend         TrendPattern = "Uptrend"
	PatternConsolidation   TrendPattern = "Consolidation"
	PatternDowntrend       TrendPattern = "Downtrend"
	PatternStrongDowntrend TrendPattern = "Strong Downtrend"
	PatternMixedVolatile   TrendPattern = "Mixed/Volatile"
)

// IndicatorSet holds derived signals for the target date. Pointer fields stay
// nil until enough history exists; they are never zero-padded.
type IndicatorSet struct {
	MAShort     *float64     `json:"ma_short,omitempty"`
	MALong      *float64     `json:"ma_long,omitempty"`
	Oscillator  *float64     `json:"oscillator,omitempty"`
	VolumeRatio *float64     `json:"volume_ratio,omitempty"`
	Pattern     TrendPattern `json:"pattern"`
}

// ReferenceSeries is an index/sector/peer return series aligned to the target
// instrument's dates. Missing dates are excluded, never interpolated.
type ReferenceSeries struct {
	ID      string
	Returns map[string]float64 // keyed by YYYY-MM-DD
}

// MarketContext is the Context Correlator's output for one reference.
type MarketContext struct {
	ReferenceID      string   `json:"reference_id"`
	ReferenceReturn  float64  `json:"reference_return"`
	RelativeStrength float64  `json:"relative_strength"`
	Correlation      *float64 `json:"correlation,omitempty"`
	Outperformed     bool     `json:"outperformed"`
}

// PeerComparison is one peer's return over the comparison window.
type PeerComparison struct {
	Symbol string  `json:"symbol"`
	Return float64 `json:"return"`
}

// SentimentLabel buckets a polarity score.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// NewsItem is one scored headline. Polarity is in [-1,1], credibility in [0,1].
type NewsItem struct {
	Title       string         `json:"title"`
	Source      string         `json:"source"`
	Description string         `json:"description"`
	PublishedAt time.Time      `json:"published_at"`
	Polarity    float64        `json:"polarity"`
	Sentiment   SentimentLabel `json:"sentiment"`
	Credibility float64        `json:"credibility"`
	Rank        int            `json:"rank"`
}

// EvidenceDocument is the deterministic, size-bounded text bundle handed to
// the explanation service. Section order is fixed.
type EvidenceDocument struct {
	Sections []EvidenceSection
}

type EvidenceSection struct {
	Title string
	Body  string
}

func (d EvidenceDocument) Render() string {
	var out string
	for i, s := range d.Sections {
		if i > 0 {
			out += "\n"
		}
		out += "=== " + s.Title + " ===\n" + s.Body + "\n"
	}
	return out
}

func (d EvidenceDocument) Size() int {
	return len(d.Render())
}

// MoveClassification is the closed set of labels for the nature of a move.
type MoveClassification string

const (
	MoveStrongIncrease   MoveClassification = "Strong Increase"
	MoveModerateIncrease MoveClassification = "Moderate Increase"
	MoveFlatNeutral      MoveClassification = "Flat/Neutral"
	MoveModerateDecrease MoveClassification = "Moderate Decrease"
	MoveStrongDecrease   MoveClassification = "Strong Decrease"
	MoveMixedVolatile    MoveClassification = "Mixed/Volatile"
)

// Classifications lists every valid MoveClassification.
var Classifications = []MoveClassification{
	MoveStrongIncrease,
	MoveModerateIncrease,
	MoveFlatNeutral,
	MoveModerateDecrease,
	MoveStrongDecrease,
	MoveMixedVolatile,
}

func (m MoveClassification) IsValid() bool {
	for _, c := range Classifications {
		if c == m {
			return true
		}
	}
	return false
}

// Explanation is the final structured result returned to callers. The shape
// is the contract consumed by presentation layers and must stay stable.
type Explanation struct {
	Symbol             string             `json:"symbol"`
	Date               string             `json:"date"`
	PriceChangePercent float64            `json:"price_change_percent"`
	Significant        bool               `json:"significant"`
	Explanation        string             `json:"explanation"`
	PrimaryDriver      string             `json:"primary_driver"`
	SupportingFactors  []string           `json:"supporting_factors"`
	MoveClassification MoveClassification `json:"move_classification"`
	ConfidenceScore    float64            `json:"confidence_score"`
	UncertaintyNote    string             `json:"uncertainty_note,omitempty"`
}
