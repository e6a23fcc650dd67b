package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"why-did-it-move/internal/domain"
	"why-did-it-move/internal/explain"
	"why-did-it-move/internal/news"
)

var explainTracer = trace.NewNoopTracerProvider().Tracer("test")

type stubBarProvider struct {
	mu     sync.Mutex
	series map[string][]domain.PriceBar
	calls  map[string]int
}

func (s *stubBarProvider) FetchDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[symbol]++
	bars, ok := s.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return bars, nil
}

type stubNewsProvider struct {
	items []news.RawItem
	err   error
}

func (s *stubNewsProvider) FetchNews(ctx context.Context, terms []string, from, to time.Time) ([]news.RawItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

type stubGenerator struct {
	result explain.Result
	err    error
	delay  time.Duration
	calls  atomic.Int64
}

func (s *stubGenerator) Generate(ctx context.Context, symbol, date string, doc domain.EvidenceDocument) (explain.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return explain.Result{State: explain.StateServiceUnavailable}, s.err
	}
	return s.result, nil
}

type stubExplanationRepo struct {
	mu       sync.Mutex
	inserted []*domain.Explanation
	history  []domain.Explanation
	stored   *domain.Explanation
}

func (s *stubExplanationRepo) Insert(ctx context.Context, e *domain.Explanation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, e)
	return nil
}

func (s *stubExplanationRepo) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error) {
	return s.history, nil
}

func (s *stubExplanationRepo) GetBySymbolDate(ctx context.Context, symbol, date string) (*domain.Explanation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored != nil && s.stored.Symbol == symbol && s.stored.Date == date {
		return s.stored, nil
	}
	return nil, nil
}

// driftBars builds n consecutive daily bars with a small upward drift and a
// configurable final-day move versus the prior close.
func driftBars(n int, lastDayPct float64) []domain.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i == n-1 {
			price = price * (1 + lastDayPct/100)
		} else if i > 0 {
			price *= 1.002
		}
		bars = append(bars, domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   price * 0.999,
			High:   price * 1.005,
			Low:    price * 0.994,
			Close:  price,
			Volume: 1_000_000,
		})
	}
	return bars
}

func lastDate(bars []domain.PriceBar) string {
	return bars[len(bars)-1].Date.Format("2006-01-02")
}

func parsedResult() explain.Result {
	return explain.Result{
		State: explain.StateParsed,
		Parsed: explain.Parsed{
			Summary:           "Shares rose after an earnings beat.",
			PrimaryDriver:     "Earnings beat.",
			SupportingFactors: []string{"Elevated volume"},
			Classification:    domain.MoveModerateIncrease,
			Confidence:        0.8,
		},
	}
}

func newTestService(bars *stubBarProvider, headlines *stubNewsProvider, gen *stubGenerator, repo *stubExplanationRepo, redis RedisClient) *ExplainService {
	// Avoid wrapping a typed nil pointer in the interface so the service's
	// nil-repo guard still applies.
	var r ExplanationRepository
	if repo != nil {
		r = repo
	}
	return NewExplainService(explainTracer, bars, headlines, gen, r, redis, DefaultConfig())
}

func TestExplainHappyPath(t *testing.T) {
	t.Parallel()

	target := driftBars(60, 3.1)
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{
		"AAPL": target,
		"SPY":  driftBars(60, 0.5),
	}}
	headlines := &stubNewsProvider{items: []news.RawItem{
		{Title: "Apple beats estimates", Source: "Reuters", PublishedAt: target[59].Date},
	}}
	gen := &stubGenerator{result: parsedResult()}
	repo := &stubExplanationRepo{}

	svc := newTestService(bars, headlines, gen, repo, nil)
	got, err := svc.Explain(context.Background(), "AAPL", lastDate(target))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Symbol != "AAPL" || got.Explanation == "" || got.PrimaryDriver == "" {
		t.Fatalf("unexpected explanation: %+v", got)
	}
	if got.PriceChangePercent < 3.0 || got.PriceChangePercent > 3.2 {
		t.Fatalf("unexpected change pct: %v", got.PriceChangePercent)
	}
	if !got.Significant {
		t.Fatal("a 3.1% move should be significant")
	}
	if got.MoveClassification != domain.MoveModerateIncrease {
		t.Fatalf("unexpected classification: %q", got.MoveClassification)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 persisted explanation, got %d", len(repo.inserted))
	}
}

func TestExplainInvalidRequest(t *testing.T) {
	t.Parallel()

	bars := &stubBarProvider{series: map[string][]domain.PriceBar{}}
	svc := newTestService(bars, &stubNewsProvider{}, &stubGenerator{result: parsedResult()}, nil, nil)

	cases := []struct{ symbol, date string }{
		{"aapl", "2024-02-29"},
		{"", "2024-02-29"},
		{"AAPL", "02/29/2024"},
		{"AAPL", "2999-01-01"},
		{"DROP TABLE", "2024-02-29"},
	}
	for _, tc := range cases {
		if _, err := svc.Explain(context.Background(), tc.symbol, tc.date); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("%s/%s: expected ErrInvalidRequest, got %v", tc.symbol, tc.date, err)
		}
	}
	if len(bars.calls) != 0 {
		t.Fatal("invalid requests must not reach the provider")
	}
}

func TestExplainNoBarForDate(t *testing.T) {
	t.Parallel()

	bars := &stubBarProvider{series: map[string][]domain.PriceBar{
		"AAPL": driftBars(60, 1),
	}}
	svc := newTestService(bars, &stubNewsProvider{}, &stubGenerator{result: parsedResult()}, nil, nil)

	_, err := svc.Explain(context.Background(), "AAPL", "2023-06-01")
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestExplainReferencesDegradeGracefully(t *testing.T) {
	t.Parallel()

	target := driftBars(60, 2.5)
	// No SPY, no sector, no peers: every reference fetch fails.
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{"AAPL": target}}
	headlines := &stubNewsProvider{err: errors.New("quota exceeded")}
	gen := &stubGenerator{result: parsedResult()}

	svc := newTestService(bars, headlines, gen, nil, nil)
	got, err := svc.Explain(context.Background(), "AAPL", lastDate(target))
	if err != nil {
		t.Fatalf("reference and news failures must not fail the pipeline: %v", err)
	}
	if got.Explanation == "" {
		t.Fatal("expected an explanation despite degraded inputs")
	}
}

func TestExplainServiceUnavailablePropagates(t *testing.T) {
	t.Parallel()

	target := driftBars(60, 2.5)
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{"AAPL": target}}
	gen := &stubGenerator{err: fmt.Errorf("exhausted retries: %w", domain.ErrServiceUnavailable)}
	repo := &stubExplanationRepo{}

	svc := newTestService(bars, &stubNewsProvider{}, gen, repo, nil)
	_, err := svc.Explain(context.Background(), "AAPL", lastDate(target))
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatal("nothing should be persisted on service failure")
	}
}

func TestExplainDegradedParseNotPersisted(t *testing.T) {
	t.Parallel()

	target := driftBars(60, 2.5)
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{"AAPL": target}}
	gen := &stubGenerator{result: explain.Result{
		State: explain.StateParseFailed,
		Parsed: explain.Parsed{
			Classification:  domain.MoveMixedVolatile,
			UncertaintyNote: "Model response was missing required fields; no explanation available.",
		},
	}}
	repo := &stubExplanationRepo{}

	svc := newTestService(bars, &stubNewsProvider{}, gen, repo, nil)
	got, err := svc.Explain(context.Background(), "AAPL", lastDate(target))
	if err != nil {
		t.Fatalf("degraded parse should still return a result: %v", err)
	}
	if got.ConfidenceScore != 0 || got.Explanation != "" {
		t.Fatalf("degraded result must not fabricate content: %+v", got)
	}
	if got.UncertaintyNote == "" {
		t.Fatal("expected an uncertainty note")
	}
	if len(repo.inserted) != 0 {
		t.Fatal("degraded results must not be persisted")
	}
}

func TestExplainDegradedParseNotCached(t *testing.T) {
	t.Parallel()

	target := driftBars(60, 2.5)
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{"AAPL": target}}
	gen := &stubGenerator{result: explain.Result{
		State: explain.StateParseFailed,
		Parsed: explain.Parsed{
			Classification:  domain.MoveMixedVolatile,
			UncertaintyNote: "Model response was missing required fields; no explanation available.",
		},
	}}
	cache := newFakeRedis()

	svc := newTestService(bars, &stubNewsProvider{}, gen, nil, cache)
	got, err := svc.Explain(context.Background(), "AAPL", lastDate(target))
	if err != nil {
		t.Fatalf("degraded parse should still return a result: %v", err)
	}
	if got.ConfidenceScore != 0 {
		t.Fatalf("degraded result must carry zero confidence: %+v", got)
	}
	if len(cache.data) != 0 {
		t.Fatalf("degraded results must not be cached, found %d cache entries", len(cache.data))
	}

	// The next request must get a fresh pipeline run, not the degraded answer.
	if _, err := svc.Explain(context.Background(), "AAPL", lastDate(target)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := gen.calls.Load(); calls != 2 {
		t.Fatalf("expected a retry to reach the generator, got %d calls", calls)
	}
}

func TestExplainServesStoredExplanation(t *testing.T) {
	t.Parallel()

	stored := &domain.Explanation{
		Symbol:             "AAPL",
		Date:               "2024-02-29",
		Explanation:        "Stored earnings explanation.",
		MoveClassification: domain.MoveModerateIncrease,
		ConfidenceScore:    0.8,
	}
	repo := &stubExplanationRepo{stored: stored}
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{}}
	gen := &stubGenerator{result: parsedResult()}

	svc := newTestService(bars, &stubNewsProvider{}, gen, repo, nil)
	got, err := svc.Explain(context.Background(), "AAPL", "2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Explanation != "Stored earnings explanation." {
		t.Fatalf("expected the stored row, got %+v", got)
	}
	if len(bars.calls) != 0 {
		t.Fatal("a stored explanation must not re-run the pipeline")
	}
	if gen.calls.Load() != 0 {
		t.Fatal("a stored explanation must not reach the generator")
	}
}

func TestExplainCacheHitSkipsPipeline(t *testing.T) {
	t.Parallel()

	cached := &domain.Explanation{Symbol: "AAPL", Date: "2024-02-29", Explanation: "cached"}
	data, _ := json.Marshal(cached)
	redis := newFakeRedis()
	_ = redis.Set(context.Background(), "explain:AAPL:2024-02-29", data, 0)

	bars := &stubBarProvider{series: map[string][]domain.PriceBar{}}
	svc := newTestService(bars, &stubNewsProvider{}, &stubGenerator{result: parsedResult()}, nil, redis)

	got, err := svc.Explain(context.Background(), "AAPL", "2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Explanation != "cached" {
		t.Fatalf("expected cached result, got %+v", got)
	}
	if len(bars.calls) != 0 {
		t.Fatal("cache hit must not run the pipeline")
	}
}

func TestExplainSingleFlightDeduplicates(t *testing.T) {
	t.Parallel()

	target := driftBars(60, 2.5)
	bars := &stubBarProvider{series: map[string][]domain.PriceBar{"AAPL": target}}
	gen := &stubGenerator{result: parsedResult(), delay: 50 * time.Millisecond}

	svc := newTestService(bars, &stubNewsProvider{}, gen, nil, nil)
	date := lastDate(target)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Explain(context.Background(), "AAPL", date); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := gen.calls.Load(); got != 1 {
		t.Fatalf("expected one in-flight invocation per key, got %d", got)
	}
}

func TestHistoryValidatesSymbol(t *testing.T) {
	t.Parallel()

	repo := &stubExplanationRepo{history: []domain.Explanation{{Symbol: "AAPL", Date: "2024-02-29"}}}
	svc := newTestService(&stubBarProvider{}, &stubNewsProvider{}, &stubGenerator{}, repo, nil)

	if _, err := svc.History(context.Background(), "not a symbol", 10); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	got, err := svc.History(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}
