package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// featureHistoryWindow is how many daily snapshots feed the live signal's
// feature vector. Covers the 10-day averages with room for gaps.
const featureHistoryWindow = 30

// WatchlistFetcher warms the cache with a full watchlist fetch.
type WatchlistFetcher interface {
	FetchMany(ctx context.Context, entities []string, kinds []domain.Kind) *domain.Bundle
}

// SnapshotStore persists the day's quote snapshots and serves recent
// history back for feature refreshes.
type SnapshotStore interface {
	AppendSnapshots(ctx context.Context, snaps []domain.Snapshot) error
	RecentSnapshots(ctx context.Context, symbol string, limit int) ([]domain.Snapshot, error)
}

// FeatureSink receives refreshed snapshot history for the live signal.
type FeatureSink interface {
	UpdateFeatures(symbol string, history []domain.Snapshot)
}

// DocumentComposer renders a fresh report or overview document; the
// assistant satisfies it.
type DocumentComposer interface {
	Compose(ctx context.Context, symbol, kind string) (string, error)
}

// DocumentWriter archives composed documents.
type DocumentWriter interface {
	UpsertDocument(ctx context.Context, doc domain.Document) error
}

// Warmup keeps the cache, the snapshot table, and the day's archived
// documents fresh for the configured watchlist. Snapshots, features, and
// documents are each optional: a nil dependency just skips that stage.
type Warmup struct {
	tracer    trace.Tracer
	fetcher   WatchlistFetcher
	snapshots SnapshotStore
	features  FeatureSink
	composer  DocumentComposer
	archive   DocumentWriter
	watchlist []string
	interval  time.Duration
}

func NewWarmup(
	tracer trace.Tracer,
	fetcher WatchlistFetcher,
	snapshots SnapshotStore,
	features FeatureSink,
	composer DocumentComposer,
	archive DocumentWriter,
	watchlist []string,
	interval time.Duration,
) *Warmup {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Warmup{
		tracer:    tracer,
		fetcher:   fetcher,
		snapshots: snapshots,
		features:  features,
		composer:  composer,
		archive:   archive,
		watchlist: watchlist,
		interval:  interval,
	}
}

// Start runs warmup cycles until ctx is cancelled. Cycle errors are logged
// and never abort the loop.
func (w *Warmup) Start(ctx context.Context) {
	if w.fetcher == nil || len(w.watchlist) == 0 {
		log.Println("Warmup job disabled: no watchlist")
		<-ctx.Done()
		return
	}
	log.Printf("Warmup job starting for %d symbols...", len(w.watchlist))

	w.runOnce(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Warmup job stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Warmup) runOnce(ctx context.Context) {
	ctx, span := w.tracer.Start(ctx, "warmup-job.run-once", trace.WithAttributes(
		attribute.Int("symbols", len(w.watchlist)),
	))
	defer span.End()

	bundle := w.fetcher.FetchMany(ctx, w.watchlist, domain.AllKinds)

	snaps := w.recordSnapshots(ctx, bundle)
	feats := w.refreshFeatures(ctx)
	docs := w.archiveDocuments(ctx)

	log.Printf("Warmup cycle complete symbols=%d snapshots=%d features=%d documents=%d",
		len(w.watchlist), snaps, feats, docs)
}

// recordSnapshots writes one day-stamped snapshot per symbol the cycle got a
// quote for. The day stamp makes repeat cycles within a day no-ops, so the
// table stays one row per symbol per day.
func (w *Warmup) recordSnapshots(ctx context.Context, bundle *domain.Bundle) int {
	if w.snapshots == nil {
		return 0
	}

	day := snapshotDay(time.Now())
	snaps := make([]domain.Snapshot, 0, len(w.watchlist))
	for _, sym := range w.watchlist {
		q, ok := warmQuote(bundle, sym)
		if !ok {
			continue
		}
		snaps = append(snaps, domain.Snapshot{
			Symbol:     sym,
			CapturedAt: day,
			Price:      q.Price,
			ChangePct:  q.ChangePct,
			Volume:     q.Volume,
		})
	}
	if len(snaps) == 0 {
		return 0
	}
	if err := w.snapshots.AppendSnapshots(ctx, snaps); err != nil {
		log.Printf("Warmup snapshot append error: %v", err)
		return 0
	}
	return len(snaps)
}

func (w *Warmup) refreshFeatures(ctx context.Context) int {
	if w.snapshots == nil || w.features == nil {
		return 0
	}

	updated := 0
	for _, sym := range w.watchlist {
		history, err := w.snapshots.RecentSnapshots(ctx, sym, featureHistoryWindow)
		if err != nil {
			log.Printf("Warmup feature refresh error for %s: %v", sym, err)
			continue
		}
		w.features.UpdateFeatures(sym, history)
		updated++
	}
	return updated
}

// archiveDocuments regenerates the day's report and overview per symbol.
// The archive upsert makes the regeneration idempotent; symbols whose fetch
// produced no price data are skipped rather than archived empty.
func (w *Warmup) archiveDocuments(ctx context.Context) int {
	if w.composer == nil || w.archive == nil {
		return 0
	}

	day := snapshotDay(time.Now())
	written := 0
	for _, sym := range w.watchlist {
		for _, kind := range []string{domain.DocumentReport, domain.DocumentOverview} {
			text, err := w.composer.Compose(ctx, sym, kind)
			if err != nil {
				log.Printf("Warmup compose %s/%s error: %v", sym, kind, err)
				continue
			}
			doc := domain.Document{Symbol: sym, DocDate: day, Kind: kind, Content: text}
			if err := w.archive.UpsertDocument(ctx, doc); err != nil {
				log.Printf("Warmup archive %s/%s error: %v", sym, kind, err)
				continue
			}
			written++
		}
	}
	return written
}

func warmQuote(b *domain.Bundle, symbol string) (domain.Quote, bool) {
	if b == nil {
		return domain.Quote{}, false
	}
	r, ok := b.Get(symbol, domain.KindHighlight)
	if !ok || len(r.Payload) == 0 {
		return domain.Quote{}, false
	}
	var q domain.Quote
	if err := json.Unmarshal(r.Payload, &q); err != nil || q.Price <= 0 {
		return domain.Quote{}, false
	}
	return q, true
}

func snapshotDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
