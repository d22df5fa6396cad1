package handler

import (
	"net/http"

	"stella/internal/domain"
	"stella/internal/router"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxBatchQueries = 10

type analyzeRequest struct {
	Query   string                 `json:"query" binding:"required"`
	History []domain.RouteDecision `json:"history"`
}

type batchRequest struct {
	Queries []string               `json:"queries" binding:"required"`
	History []domain.RouteDecision `json:"history"`
}

// Analyze godoc
// @Summary      Answer one financial query
// @Description  Routes the query, gathers market data, and returns the rendered answer. Pass prior decisions in history so follow-ups resolve their subject.
// @Tags         analyze
// @Accept       json
// @Produce      json
// @Param        request  body  analyzeRequest  true  "Query plus optional decision history"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/analyze [post]
func (h *Handler) Analyze(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.analyze")
	defer span.End()

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	hist := router.NewHistoryFrom(0, req.History)
	ans := h.assistant.Answer(ctx, req.Query, hist)
	span.SetAttributes(attribute.String("task", string(ans.Task)))

	resp := gin.H{"answer": ans}
	if items := hist.Items(); len(items) > 0 {
		resp["decision"] = items[len(items)-1]
	}
	c.JSON(http.StatusOK, resp)
}

// AnalyzeBatch godoc
// @Summary      Answer a sequence of queries
// @Description  Runs queries in order through one shared decision history, so later queries can follow up on earlier ones. A failed query degrades to a text answer without stopping the batch.
// @Tags         analyze
// @Accept       json
// @Produce      json
// @Param        request  body  batchRequest  true  "Queries plus optional seed history"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/analyze/batch [post]
func (h *Handler) AnalyzeBatch(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.analyze-batch")
	defer span.End()

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Queries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queries is required"})
		return
	}
	if len(req.Queries) > maxBatchQueries {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many queries", "max": maxBatchQueries})
		return
	}
	span.SetAttributes(attribute.Int("queries", len(req.Queries)))

	hist := router.NewHistoryFrom(0, req.History)
	answers := make([]domain.Answer, 0, len(req.Queries))
	for _, q := range req.Queries {
		answers = append(answers, h.assistant.Answer(ctx, q, hist))
	}

	c.JSON(http.StatusOK, gin.H{
		"answers": answers,
		"history": hist.Items(),
	})
}
