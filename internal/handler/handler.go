package handler

import (
	"context"
	"time"

	"stella/internal/domain"
	"stella/internal/router"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Assistant answers routed queries; satisfied by *assistant.Assistant.
type Assistant interface {
	Answer(ctx context.Context, query string, history *router.History) domain.Answer
}

// Fetcher is the direct orchestrator access behind the highlights route.
type Fetcher interface {
	FetchMany(ctx context.Context, entities []string, kinds []domain.Kind) *domain.Bundle
}

// ArchiveReader looks up pregenerated documents; nil when postgres is not
// configured.
type ArchiveReader interface {
	LatestDocument(ctx context.Context, symbol, kind string) (*domain.Document, error)
	DocumentByDate(ctx context.Context, symbol, kind string, date time.Time) (*domain.Document, error)
}

// SignalFunc annotates highlight rows; nil disables annotation.
type SignalFunc func(symbol string, changePct float64) (string, float64)

// ReadyCheck reports whether one backing dependency is reachable.
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	tracer    trace.Tracer
	assistant Assistant
	fetcher   Fetcher
	archive   ArchiveReader
	signal    SignalFunc
	ready     map[string]ReadyCheck
}

func New(
	tracer trace.Tracer,
	assistant Assistant,
	fetcher Fetcher,
	archive ArchiveReader,
	signal SignalFunc,
	ready map[string]ReadyCheck,
) *Handler {
	return &Handler{
		tracer:    tracer,
		assistant: assistant,
		fetcher:   fetcher,
		archive:   archive,
		signal:    signal,
		ready:     ready,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	api := r.Group("/api/v1", APIKeyAuth(apiKey))
	api.POST("/analyze", h.Analyze)
	api.POST("/analyze/batch", h.AnalyzeBatch)
	api.GET("/highlights", h.Highlights)
	api.GET("/archive/:symbol", h.ArchiveLookup)
}
