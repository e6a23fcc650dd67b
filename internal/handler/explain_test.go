package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"why-did-it-move/internal/domain"
)

type explainerStub struct {
	explanation *domain.Explanation
	history     []domain.Explanation
	err         error
}

func (s explainerStub) Explain(ctx context.Context, symbol, date string) (*domain.Explanation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.explanation, nil
}

func (s explainerStub) History(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history, nil
}

func newTestRouter(stub explainerStub) *gin.Engine {
	h := New(trace.NewNoopTracerProvider().Tracer("handler-test"), stub)
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func TestExplainMoveSuccess(t *testing.T) {
	router := newTestRouter(explainerStub{explanation: &domain.Explanation{
		Symbol:             "AAPL",
		Date:               "2024-05-10",
		PriceChangePercent: 3.2,
		Significant:        true,
		Explanation:        "Earnings beat drove buying.",
		PrimaryDriver:      "Earnings beat.",
		MoveClassification: domain.MoveModerateIncrease,
		ConfidenceScore:    0.8,
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/explain/AAPL?date=2024-05-10", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body domain.Explanation
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Symbol != "AAPL" || body.MoveClassification != domain.MoveModerateIncrease {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestExplainMoveMissingDate(t *testing.T) {
	router := newTestRouter(explainerStub{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/explain/AAPL", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExplainMoveErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("symbol: %w", domain.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("no bar: %w", domain.ErrDataUnavailable), http.StatusNotFound},
		{fmt.Errorf("llm: %w", domain.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := newTestRouter(explainerStub{err: tc.err})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/explain/AAPL?date=2024-05-10", nil)
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestExplainHistorySuccess(t *testing.T) {
	router := newTestRouter(explainerStub{history: []domain.Explanation{
		{Symbol: "AAPL", Date: "2024-05-10"},
		{Symbol: "AAPL", Date: "2024-05-09"},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/explain/AAPL/history?limit=5", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Symbol       string               `json:"symbol"`
		Explanations []domain.Explanation `json:"explanations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Symbol != "AAPL" || len(body.Explanations) != 2 {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(APIKeyAuth("secret"))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", "secret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", w.Code)
	}
}
