package marketctx

import (
	"fmt"
	"sort"

	"why-did-it-move/internal/domain"

	"gonum.org/v1/gonum/stat"
)

const dateLayout = "2006-01-02"

// Config carries the correlator's tunables. MinObservations is the smallest
// number of paired daily returns for which a correlation is reported.
type Config struct {
	MinObservations int
}

func DefaultConfig() Config {
	return Config{MinObservations: 5}
}

// DailyReturns converts a bar sequence into close-to-close percent returns
// keyed by date. The first bar anchors the series and produces no return.
func DailyReturns(bars []domain.PriceBar) map[string]float64 {
	out := make(map[string]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		out[bars[i].Date.Format(dateLayout)] = (bars[i].Close - prev) / prev * 100
	}
	return out
}

// PeriodReturn compounds a bar sequence's close-to-close returns into one
// percent figure for the whole window.
func PeriodReturn(bars []domain.PriceBar) float64 {
	if len(bars) < 2 || bars[0].Close == 0 {
		return 0
	}
	return (bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close * 100
}

// Compare measures the target against one reference series: relative strength
// in percentage points, Pearson correlation of paired daily returns, and an
// outperformance flag. Returns ErrReferenceUnavailable when the reference has
// no data on the target's dates; callers may omit the reference and proceed.
func Compare(target []domain.PriceBar, ref domain.ReferenceSeries, cfg Config) (domain.MarketContext, error) {
	targetReturns := DailyReturns(target)

	dates := make([]string, 0, len(targetReturns))
	for d := range targetReturns {
		if _, ok := ref.Returns[d]; ok {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return domain.MarketContext{}, fmt.Errorf("reference %s: %w", ref.ID, domain.ErrReferenceUnavailable)
	}
	sort.Strings(dates)

	x := make([]float64, 0, len(dates))
	y := make([]float64, 0, len(dates))
	refCompound := 1.0
	for _, d := range dates {
		x = append(x, targetReturns[d])
		y = append(y, ref.Returns[d])
		refCompound *= 1 + ref.Returns[d]/100
	}
	refReturn := (refCompound - 1) * 100

	ctx := domain.MarketContext{
		ReferenceID:     ref.ID,
		ReferenceReturn: refReturn,
	}
	ctx.RelativeStrength = PeriodReturn(target) - refReturn
	ctx.Outperformed = ctx.RelativeStrength > 0

	if len(dates) >= cfg.MinObservations {
		corr := stat.Correlation(x, y, nil)
		ctx.Correlation = &corr
	}
	return ctx, nil
}

// ComparePeers compounds each peer's aligned returns over the window and
// ranks the peers by absolute return, largest movers first.
func ComparePeers(peers []domain.ReferenceSeries, dates []string) []domain.PeerComparison {
	out := make([]domain.PeerComparison, 0, len(peers))
	for _, p := range peers {
		compound := 1.0
		seen := false
		for _, d := range dates {
			if r, ok := p.Returns[d]; ok {
				compound *= 1 + r/100
				seen = true
			}
		}
		if !seen {
			continue
		}
		out = append(out, domain.PeerComparison{Symbol: p.ID, Return: (compound - 1) * 100})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Return) > abs(out[j].Return)
	})
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
