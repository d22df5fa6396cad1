package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"stella/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxHighlightSymbols = 20

// Highlights godoc
// @Summary      Snapshot quotes for a list of symbols
// @Description  Fetches current quotes for up to 20 symbols in one concurrent pass and annotates each with the momentum signal when available. Symbols that failed everywhere come back with an error field instead of failing the request.
// @Tags         highlights
// @Produce      json
// @Param        symbols  query  string  true  "Comma-separated ticker symbols"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/highlights [get]
func (h *Handler) Highlights(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.highlights")
	defer span.End()

	symbols := splitSymbols(c.Query("symbols"))
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query parameter is required"})
		return
	}
	if len(symbols) > maxHighlightSymbols {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many symbols", "max": maxHighlightSymbols})
		return
	}
	span.SetAttributes(attribute.Int("symbols", len(symbols)))

	bundle := h.fetcher.FetchMany(ctx, symbols, []domain.Kind{domain.KindHighlight})

	rows := make([]domain.Highlight, 0, len(bundle.Entities))
	errs := make(map[string]string)
	for _, sym := range bundle.Entities {
		r, ok := bundle.Get(sym, domain.KindHighlight)
		if !ok || len(r.Payload) == 0 {
			if r.Error != "" {
				errs[sym] = r.Error
			}
			rows = append(rows, domain.Highlight{Symbol: sym})
			continue
		}
		var q domain.Quote
		if err := json.Unmarshal(r.Payload, &q); err != nil {
			errs[sym] = "malformed quote payload"
			rows = append(rows, domain.Highlight{Symbol: sym})
			continue
		}
		row := domain.Highlight{
			Symbol:    sym,
			Price:     q.Price,
			ChangePct: q.ChangePct,
			Volume:    q.Volume,
		}
		if h.signal != nil {
			row.Signal, row.SignalProb = h.signal(sym, q.ChangePct)
		}
		rows = append(rows, row)
	}

	resp := gin.H{"highlights": rows}
	if len(errs) > 0 {
		resp["errors"] = errs
	}
	c.JSON(http.StatusOK, resp)
}

// ArchiveLookup godoc
// @Summary      Fetch a pregenerated report or overview
// @Description  Returns the archived document for a symbol, either the latest one or a specific day via date=YYYY-MM-DD. kind selects report (default) or overview.
// @Tags         archive
// @Produce      json
// @Param        symbol  path   string  true   "Ticker symbol"
// @Param        kind    query  string  false  "Document kind (report, overview)"  default(report)
// @Param        date    query  string  false  "Calendar day, YYYY-MM-DD"
// @Success      200  {object}  domain.Document
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/archive/{symbol} [get]
func (h *Handler) ArchiveLookup(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.archive-lookup")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	kind := c.DefaultQuery("kind", domain.DocumentReport)
	if kind != domain.DocumentReport && kind != domain.DocumentOverview {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported kind: " + kind})
		return
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("kind", kind))

	var (
		doc *domain.Document
		err error
	)
	if rawDate := c.Query("date"); rawDate != "" {
		date, perr := time.Parse("2006-01-02", rawDate)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		doc, err = h.archive.DocumentByDate(ctx, symbol, kind, date)
	} else {
		doc, err = h.archive.LatestDocument(ctx, symbol, kind)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no archived document for " + symbol})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		sym := strings.ToUpper(strings.TrimSpace(p))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
