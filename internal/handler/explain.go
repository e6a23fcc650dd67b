package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"why-did-it-move/internal/domain"
)

// ExplainMove godoc
// @Summary      Explain a stock's move on a specific day
// @Description  Runs the evidence pipeline (indicators, market context, news) and returns an AI-generated, evidence-based explanation
// @Tags         explain
// @Produce      json
// @Param        symbol  path   string  true  "Ticker symbol (e.g., AAPL)"
// @Param        date    query  string  true  "Trading date (YYYY-MM-DD)"
// @Success      200  {object}  domain.Explanation
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/explain/{symbol} [get]
func (h *Handler) ExplainMove(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.explain-move")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	date := c.Query("date")
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("date", date))

	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required (YYYY-MM-DD)"})
		return
	}

	explanation, err := h.explainer.Explain(ctx, symbol, date)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrDataUnavailable):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrServiceUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "explanation service unavailable, retry later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, explanation)
}

// ExplainHistory godoc
// @Summary      List previously generated explanations for a symbol
// @Description  Returns persisted explanations, newest first
// @Tags         explain
// @Produce      json
// @Param        symbol  path   string  true   "Ticker symbol (e.g., AAPL)"
// @Param        limit   query  int     false  "Max rows (default 20, max 100)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/explain/{symbol}/history [get]
func (h *Handler) ExplainHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.explain-history")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	limit := 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	history, err := h.explainer.History(ctx, symbol, limit)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":       symbol,
		"explanations": history,
	})
}
