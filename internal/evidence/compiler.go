package evidence

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"why-did-it-move/internal/domain"
)

// Section titles, fixed order. The explanation prompt depends on these.
const (
	sectionMarketData = "MARKET DATA"
	sectionNews       = "NEWS & EVENTS"
	sectionContext    = "MARKET CONTEXT"
)

const (
	noNewsMarker    = "No relevant news found for this window."
	noContextMarker = "Market reference data not available."
)

// Budgets bounds the compiled document. Per-section budgets are scaled down
// proportionally when they would overflow the global budget.
type Budgets struct {
	MarketData int
	News       int
	Context    int
	Global     int
}

func DefaultBudgets() Budgets {
	return Budgets{
		MarketData: 1200,
		News:       1800,
		Context:    1000,
		Global:     4200,
	}
}

// Input is the joined output of the indicator, news, and context stages for
// one (symbol, date) request. Optional fields may be nil/empty; the compiler
// renders explicit no-data markers instead of omitting sections.
type Input struct {
	Symbol             string
	Date               string
	Bar                domain.PriceBar
	PriceChangePercent float64
	Indicators         domain.IndicatorSet
	UnusualActivity    bool
	News               []domain.NewsItem
	Market             *domain.MarketContext
	Sector             *domain.MarketContext
	Peers              []domain.PeerComparison
}

// Compile renders the three fixed sections under the configured budgets.
// Identical inputs always yield byte-identical output; truncation drops the
// lowest-ranked blocks first.
func Compile(in Input, b Budgets) domain.EvidenceDocument {
	headerOverhead := 0
	for _, title := range []string{sectionMarketData, sectionNews, sectionContext} {
		headerOverhead += len("=== "+title+" ===\n") + 2
	}
	if sum := b.MarketData + b.News + b.Context + headerOverhead; b.Global > 0 && sum > b.Global {
		scale := float64(b.Global-headerOverhead) / float64(b.MarketData+b.News+b.Context)
		b.MarketData = int(float64(b.MarketData) * scale)
		b.News = int(float64(b.News) * scale)
		b.Context = int(float64(b.Context) * scale)
	}

	return domain.EvidenceDocument{Sections: []domain.EvidenceSection{
		{Title: sectionMarketData, Body: fitBlocks(marketDataBlocks(in), b.MarketData)},
		{Title: sectionNews, Body: fitBlocks(newsBlocks(in.News), b.News)},
		{Title: sectionContext, Body: fitBlocks(contextBlocks(in), b.Context)},
	}}
}

// fitBlocks joins blocks in priority order, stopping before the budget is
// exceeded. At least the first block is always kept so a section is never
// empty.
func fitBlocks(blocks []string, budget int) string {
	var sb strings.Builder
	for i, block := range blocks {
		add := len(block)
		if i > 0 {
			add++
		}
		if i > 0 && budget > 0 && sb.Len()+add > budget {
			break
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(block)
	}
	return sb.String()
}

func marketDataBlocks(in Input) []string {
	blocks := []string{
		fmt.Sprintf("Symbol: %s\nDate: %s\nPrice Change: %+.2f%%", in.Symbol, in.Date, in.PriceChangePercent),
		fmt.Sprintf("Open: %.2f  High: %.2f  Low: %.2f  Close: %.2f", in.Bar.Open, in.Bar.High, in.Bar.Low, in.Bar.Close),
		fmt.Sprintf("Volume: %d", in.Bar.Volume),
	}

	if in.Indicators.VolumeRatio != nil {
		ratio := *in.Indicators.VolumeRatio
		context := "normal"
		switch {
		case ratio > 2.0:
			context = "significantly elevated (2x+ average)"
		case ratio > 1.5:
			context = "elevated (1.5x+ average)"
		case ratio < 0.5:
			context = "below average"
		}
		blocks = append(blocks, fmt.Sprintf("Volume Ratio: %.2fx trailing average (%s)", ratio, context))
	} else {
		blocks = append(blocks, "Volume Ratio: no data (insufficient history)")
	}

	blocks = append(blocks, "Recent Pattern: "+string(in.Indicators.Pattern))

	if in.Indicators.MAShort != nil {
		blocks = append(blocks, fmt.Sprintf("20-Day MA: %.2f", *in.Indicators.MAShort))
	} else {
		blocks = append(blocks, "20-Day MA: no data (insufficient history)")
	}
	if in.Indicators.MALong != nil {
		blocks = append(blocks, fmt.Sprintf("50-Day MA: %.2f", *in.Indicators.MALong))
	} else {
		blocks = append(blocks, "50-Day MA: no data (insufficient history)")
	}
	if in.Indicators.Oscillator != nil {
		blocks = append(blocks, fmt.Sprintf("Momentum Oscillator (14d): %.1f", *in.Indicators.Oscillator))
	} else {
		blocks = append(blocks, "Momentum Oscillator (14d): no data (insufficient history)")
	}

	if in.UnusualActivity {
		blocks = append(blocks, "Anomaly Check: trading activity on this day is unusual versus recent history")
	}
	return blocks
}

func newsBlocks(items []domain.NewsItem) []string {
	if len(items) == 0 {
		return []string{noNewsMarker}
	}
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		block := fmt.Sprintf("%d. %s\n   Source: %s (%s, credibility %.2f, sentiment %s)",
			item.Rank, item.Title, item.Source, item.PublishedAt.Format("2006-01-02"),
			item.Credibility, item.Sentiment)
		if item.Description != "" {
			block += "\n   " + truncateRunes(item.Description, 150)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// truncateRunes caps s at max bytes without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func contextBlocks(in Input) []string {
	if in.Market == nil && in.Sector == nil && len(in.Peers) == 0 {
		return []string{noContextMarker}
	}

	var blocks []string
	if in.Market != nil {
		blocks = append(blocks, referenceBlock("Market", *in.Market))
	} else {
		blocks = append(blocks, "Market reference: no data")
	}
	if in.Sector != nil {
		blocks = append(blocks, referenceBlock("Sector", *in.Sector))
	} else {
		blocks = append(blocks, "Sector reference: no data")
	}
	for _, peer := range in.Peers {
		blocks = append(blocks, fmt.Sprintf("Peer %s: %+.2f%% over the window", peer.Symbol, peer.Return))
	}
	return blocks
}

func referenceBlock(kind string, ctx domain.MarketContext) string {
	line := fmt.Sprintf("%s (%s): %+.2f%%, relative strength %+.2fpp", kind, ctx.ReferenceID, ctx.ReferenceReturn, ctx.RelativeStrength)
	if ctx.Outperformed {
		line += ", outperformed"
	} else {
		line += ", underperformed"
	}
	if ctx.Correlation != nil {
		line += fmt.Sprintf(", correlation %.2f", *ctx.Correlation)
	}
	return line
}
