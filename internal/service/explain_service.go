package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"why-did-it-move/internal/anomaly"
	"why-did-it-move/internal/domain"
	"why-did-it-move/internal/evidence"
	"why-did-it-move/internal/explain"
	"why-did-it-move/internal/marketctx"
	"why-did-it-move/internal/news"
	"why-did-it-move/internal/ta"
)

const dateLayout = "2006-01-02"

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// BarProvider supplies daily bars for instruments and reference ETFs alike.
type BarProvider interface {
	FetchDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceBar, error)
}

// NewsProvider supplies raw headlines for a query window.
type NewsProvider interface {
	FetchNews(ctx context.Context, terms []string, from, to time.Time) ([]news.RawItem, error)
}

// ExplanationGenerator produces a structured explanation from evidence.
type ExplanationGenerator interface {
	Generate(ctx context.Context, symbol, date string, doc domain.EvidenceDocument) (explain.Result, error)
}

// ExplanationRepository persists finished explanations for the history API
// and serves stored rows back to repeat requests.
type ExplanationRepository interface {
	Insert(ctx context.Context, e *domain.Explanation) error
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error)
	GetBySymbolDate(ctx context.Context, symbol, date string) (*domain.Explanation, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Config carries the pipeline's tunable windows and thresholds.
type Config struct {
	HistoryDays            int     // bar window before the target date
	NewsWindowDays         int     // headline lookback before the target date
	MaxPeers               int     // peer fetches per request
	SignificantChangePct   float64 // |change| at or above this marks the day significant
	SignificantVolumeRatio float64 // volume ratio at or above this marks the day significant
	MarketReference        string  // broad market ETF
	CacheTTL               time.Duration
}

func DefaultConfig() Config {
	return Config{
		HistoryDays:            90,
		NewsWindowDays:         3,
		MaxPeers:               3,
		SignificantChangePct:   2.0,
		SignificantVolumeRatio: 1.5,
		MarketReference:        "SPY",
		CacheTTL:               24 * time.Hour,
	}
}

// ExplainService runs the full pipeline for one (symbol, date) request:
// indicators, market context, and news gathered concurrently, compiled into
// evidence, explained by the model, then cached and persisted.
type ExplainService struct {
	tracer    trace.Tracer
	bars      BarProvider
	headlines NewsProvider
	generator ExplanationGenerator
	repo      ExplanationRepository
	redis     RedisClient

	cfg      Config
	taCfg    ta.Config
	ctxCfg   marketctx.Config
	newsCfg  news.Config
	budgets  evidence.Budgets
	anomCfg  anomaly.Config
	peers    marketctx.PeerMap
	inFlight singleflight.Group
}

func NewExplainService(
	tracer trace.Tracer,
	bars BarProvider,
	headlines NewsProvider,
	generator ExplanationGenerator,
	repo ExplanationRepository,
	redisClient RedisClient,
	cfg Config,
) *ExplainService {
	def := DefaultConfig()
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = def.HistoryDays
	}
	if cfg.NewsWindowDays <= 0 {
		cfg.NewsWindowDays = def.NewsWindowDays
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = def.MaxPeers
	}
	if cfg.SignificantChangePct <= 0 {
		cfg.SignificantChangePct = def.SignificantChangePct
	}
	if cfg.SignificantVolumeRatio <= 0 {
		cfg.SignificantVolumeRatio = def.SignificantVolumeRatio
	}
	if cfg.MarketReference == "" {
		cfg.MarketReference = def.MarketReference
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &ExplainService{
		tracer:    tracer,
		bars:      bars,
		headlines: headlines,
		generator: generator,
		repo:      repo,
		redis:     redisClient,
		cfg:       cfg,
		taCfg:     ta.DefaultConfig(),
		ctxCfg:    marketctx.DefaultConfig(),
		newsCfg:   news.DefaultConfig(),
		budgets:   evidence.DefaultBudgets(),
		anomCfg:   anomaly.DefaultConfig(),
		peers:     marketctx.DefaultPeerMap(),
	}
}

// Explain answers why a symbol moved on a date. Fully parsed results are
// cached; degraded ones are returned but never cached, so a later request can
// retry. At most one pipeline run is in flight per (symbol, date) key at a
// time.
func (s *ExplainService) Explain(ctx context.Context, symbol, date string) (*domain.Explanation, error) {
	ctx, span := s.tracer.Start(ctx, "explain-service.explain")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("date", date))

	target, err := s.validate(symbol, date)
	if err != nil {
		return nil, err
	}

	key := "explain:" + symbol + ":" + date
	if s.redis != nil {
		cached, err := s.getCached(ctx, key)
		if err != nil {
			log.Printf("redis cache read error: %v", err)
		}
		if cached != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	result, err, _ := s.inFlight.Do(key, func() (interface{}, error) {
		return s.buildExplanation(ctx, symbol, date, target)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome := result.(pipelineOutcome)
	if s.redis != nil && outcome.state == explain.StateParsed {
		if err := s.setCached(ctx, key, outcome.expl); err != nil {
			log.Printf("redis cache write error: %v", err)
		}
	}
	return outcome.expl, nil
}

// History lists previously generated explanations for a symbol, newest first.
func (s *ExplainService) History(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error) {
	ctx, span := s.tracer.Start(ctx, "explain-service.history")
	defer span.End()

	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("symbol %q: %w", symbol, domain.ErrInvalidRequest)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListBySymbol(ctx, symbol, limit)
}

func (s *ExplainService) validate(symbol, date string) (time.Time, error) {
	if !symbolPattern.MatchString(symbol) {
		return time.Time{}, fmt.Errorf("symbol %q: %w", symbol, domain.ErrInvalidRequest)
	}
	target, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", date, domain.ErrInvalidRequest)
	}
	if target.After(time.Now().UTC()) {
		return time.Time{}, fmt.Errorf("date %q is in the future: %w", date, domain.ErrInvalidRequest)
	}
	return target, nil
}

type pipelineData struct {
	indicators domain.IndicatorSet
	unusual    bool
	market     *domain.MarketContext
	sector     *domain.MarketContext
	peerComps  []domain.PeerComparison
	items      []domain.NewsItem
}

// pipelineOutcome pairs the explanation with the invocation's terminal state
// so the caller can tell a fully parsed result from a degraded one.
type pipelineOutcome struct {
	expl  *domain.Explanation
	state explain.InvocationState
}

func (s *ExplainService) buildExplanation(ctx context.Context, symbol, date string, target time.Time) (pipelineOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "explain-service.pipeline")
	defer span.End()

	// Only fully parsed results are persisted, so a stored row can be served
	// without re-running the pipeline.
	if s.repo != nil {
		stored, err := s.repo.GetBySymbolDate(ctx, symbol, date)
		if err != nil {
			log.Printf("stored explanation lookup for %s %s: %v", symbol, date, err)
		}
		if stored != nil {
			span.SetAttributes(attribute.Bool("store.hit", true))
			return pipelineOutcome{expl: stored, state: explain.StateParsed}, nil
		}
	}

	from := target.AddDate(0, 0, -s.cfg.HistoryDays)
	to := target.AddDate(0, 0, 1)

	bars, err := s.bars.FetchDailyBars(ctx, symbol, from, to)
	if err != nil {
		return pipelineOutcome{}, err
	}

	idx := barIndexOn(bars, target)
	if idx < 0 {
		return pipelineOutcome{}, fmt.Errorf("no bar for %s on %s: %w", symbol, date, domain.ErrDataUnavailable)
	}
	window := bars[:idx+1]
	targetBar := bars[idx]

	changePct := intradayChangePct(targetBar)
	if idx > 0 && bars[idx-1].Close != 0 {
		changePct = (targetBar.Close - bars[idx-1].Close) / bars[idx-1].Close * 100
	}

	var data pipelineData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		set, err := ta.Compute(window, s.taCfg)
		if err != nil && !errors.Is(err, domain.ErrInsufficientHistory) {
			return err
		}
		data.indicators = set
		if det, ok := anomaly.Detect(window, s.anomCfg); ok {
			data.unusual = det.Unusual
		}
		return nil
	})

	g.Go(func() error {
		data.market, data.sector, data.peerComps = s.gatherContext(gctx, symbol, window, from, to)
		return nil
	})

	g.Go(func() error {
		data.items = s.gatherNews(gctx, symbol, target)
		return nil
	})

	if err := g.Wait(); err != nil {
		return pipelineOutcome{}, err
	}

	doc := evidence.Compile(evidence.Input{
		Symbol:             symbol,
		Date:               date,
		Bar:                targetBar,
		PriceChangePercent: changePct,
		Indicators:         data.indicators,
		UnusualActivity:    data.unusual,
		News:               data.items,
		Market:             data.market,
		Sector:             data.sector,
		Peers:              data.peerComps,
	}, s.budgets)

	result, err := s.generator.Generate(ctx, symbol, date, doc)
	if err != nil {
		return pipelineOutcome{}, err
	}

	significant := changePct >= s.cfg.SignificantChangePct || changePct <= -s.cfg.SignificantChangePct
	if !significant && data.indicators.VolumeRatio != nil {
		significant = *data.indicators.VolumeRatio >= s.cfg.SignificantVolumeRatio
	}

	expl := &domain.Explanation{
		Symbol:             symbol,
		Date:               date,
		PriceChangePercent: changePct,
		Significant:        significant,
		Explanation:        result.Summary,
		PrimaryDriver:      result.PrimaryDriver,
		SupportingFactors:  result.SupportingFactors,
		MoveClassification: result.Classification,
		ConfidenceScore:    result.Confidence,
		UncertaintyNote:    result.UncertaintyNote,
	}

	if s.repo != nil && result.State == explain.StateParsed {
		if err := s.repo.Insert(ctx, expl); err != nil {
			log.Printf("persist explanation for %s %s: %v", symbol, date, err)
		}
	}
	return pipelineOutcome{expl: expl, state: result.State}, nil
}

// gatherContext fetches the market reference, sector proxy, and peer set.
// Every reference is optional: a failed fetch is logged and omitted.
func (s *ExplainService) gatherContext(ctx context.Context, symbol string, window []domain.PriceBar, from, to time.Time) (*domain.MarketContext, *domain.MarketContext, []domain.PeerComparison) {
	ctx, span := s.tracer.Start(ctx, "explain-service.gather-context")
	defer span.End()

	market := s.compareAgainst(ctx, s.cfg.MarketReference, window, from, to)

	var sector *domain.MarketContext
	if proxy, ok := marketctx.SectorProxy[symbol]; ok {
		sector = s.compareAgainst(ctx, proxy, window, from, to)
	}

	var peerSeries []domain.ReferenceSeries
	for i, peer := range s.peers.Peers(symbol) {
		if i >= s.cfg.MaxPeers {
			break
		}
		peerBars, err := s.bars.FetchDailyBars(ctx, peer, from, to)
		if err != nil {
			log.Printf("peer %s unavailable: %v", peer, err)
			continue
		}
		peerSeries = append(peerSeries, domain.ReferenceSeries{
			ID:      peer,
			Returns: marketctx.DailyReturns(peerBars),
		})
	}

	var comps []domain.PeerComparison
	if len(peerSeries) > 0 {
		comps = marketctx.ComparePeers(peerSeries, barDates(window))
	}
	return market, sector, comps
}

func (s *ExplainService) compareAgainst(ctx context.Context, refID string, window []domain.PriceBar, from, to time.Time) *domain.MarketContext {
	refBars, err := s.bars.FetchDailyBars(ctx, refID, from, to)
	if err != nil {
		log.Printf("reference %s unavailable: %v", refID, err)
		return nil
	}
	ref := domain.ReferenceSeries{ID: refID, Returns: marketctx.DailyReturns(refBars)}

	mc, err := marketctx.Compare(window, ref, s.ctxCfg)
	if err != nil {
		log.Printf("reference %s comparison failed: %v", refID, err)
		return nil
	}
	return &mc
}

// gatherNews fetches and scores headlines; failures degrade to an empty set.
func (s *ExplainService) gatherNews(ctx context.Context, symbol string, target time.Time) []domain.NewsItem {
	ctx, span := s.tracer.Start(ctx, "explain-service.gather-news")
	defer span.End()

	if s.headlines == nil {
		return nil
	}

	aliases := news.AliasesFor(symbol)
	terms := append([]string{symbol}, aliases...)
	from := target.AddDate(0, 0, -s.cfg.NewsWindowDays)

	raw, err := s.headlines.FetchNews(ctx, terms, from, target.AddDate(0, 0, 1))
	if err != nil {
		log.Printf("news unavailable for %s: %v", symbol, err)
		return nil
	}
	return news.Score(raw, symbol, aliases, s.newsCfg)
}

func (s *ExplainService) setCached(ctx context.Context, key string, e *domain.Explanation) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, s.cfg.CacheTTL).Err()
}

func (s *ExplainService) getCached(ctx context.Context, key string) (*domain.Explanation, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e domain.Explanation
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func barIndexOn(bars []domain.PriceBar, target time.Time) int {
	want := target.Format(dateLayout)
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Date.Format(dateLayout) == want {
			return i
		}
	}
	return -1
}

func barDates(bars []domain.PriceBar) []string {
	dates := make([]string, 0, len(bars))
	for _, b := range bars {
		dates = append(dates, b.Date.Format(dateLayout))
	}
	return dates
}

func intradayChangePct(bar domain.PriceBar) float64 {
	if bar.Open == 0 {
		return 0
	}
	return (bar.Close - bar.Open) / bar.Open * 100
}
