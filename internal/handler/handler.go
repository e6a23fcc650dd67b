package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"why-did-it-move/internal/domain"
)

// Explainer is the pipeline surface the HTTP layer consumes.
type Explainer interface {
	Explain(ctx context.Context, symbol, date string) (*domain.Explanation, error)
	History(ctx context.Context, symbol string, limit int) ([]domain.Explanation, error)
}

type Handler struct {
	tracer    trace.Tracer
	explainer Explainer
}

func New(tracer trace.Tracer, explainer Explainer) *Handler {
	return &Handler{
		tracer:    tracer,
		explainer: explainer,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/explain/:symbol", h.ExplainMove)
	r.GET("/api/explain/:symbol/history", h.ExplainHistory)
}
