package fetcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultGlobalTimeout = 30 * time.Second

// PairFetcher resolves a single (entity, kind) pair; *Fetcher satisfies it.
type PairFetcher interface {
	Fetch(ctx context.Context, entity string, kind domain.Kind) domain.FetchResult
}

// Orchestrator fans a multi-entity request out over the shared worker pool,
// one job per (entity, kind) pair. Pairs fail independently; the bundle the
// caller gets back always contains an entry for every requested pair, and
// the call returns no later than the global deadline.
type Orchestrator struct {
	fetcher PairFetcher
	pool    *Pool
	timeout time.Duration
	tracer  trace.Tracer
}

func NewOrchestrator(f PairFetcher, pool *Pool, timeout time.Duration, tracer trace.Tracer) *Orchestrator {
	if pool == nil {
		pool = NewPool(defaultPoolSize)
	}
	if timeout <= 0 {
		timeout = defaultGlobalTimeout
	}
	return &Orchestrator{
		fetcher: f,
		pool:    pool,
		timeout: timeout,
		tracer:  tracer,
	}
}

// FetchMany fetches every (entity, kind) combination and bundles the
// results keyed by the caller's entity order. Pairs still pending when the
// deadline fires are recorded as timed out; their jobs cache nothing.
func (o *Orchestrator) FetchMany(ctx context.Context, entities []string, kinds []domain.Kind) *domain.Bundle {
	ctx, span := o.tracer.Start(ctx, "orchestrator.fetch-many", trace.WithAttributes(
		attribute.Int("entities", len(entities)),
		attribute.Int("kinds", len(kinds)),
	))
	defer span.End()

	entities = dedupe(entities)
	bundle := domain.NewBundle(entities)
	if len(entities) == 0 || len(kinds) == 0 {
		return bundle
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	total := len(entities) * len(kinds)
	results := make(chan domain.FetchResult, total)

	for _, entity := range entities {
		for _, kind := range kinds {
			err := o.pool.Submit(ctx, func() {
				if ctx.Err() != nil {
					results <- timeoutResult(entity, kind)
					return
				}
				results <- o.fetcher.Fetch(ctx, entity, kind)
			})
			if err != nil {
				results <- timeoutResult(entity, kind)
			}
		}
	}

	for received := 0; received < total; {
		select {
		case r := <-results:
			bundle.Set(r)
			received++
			continue
		case <-ctx.Done():
		}
		break
	}

	// Results that landed between the deadline firing and now still count;
	// whatever is missing after the drain timed out.
	for {
		select {
		case r := <-results:
			bundle.Set(r)
			continue
		default:
		}
		break
	}

	pending := 0
	for _, entity := range entities {
		for _, kind := range kinds {
			if _, ok := bundle.Get(entity, kind); !ok {
				bundle.Set(timeoutResult(entity, kind))
				pending++
			}
		}
	}
	if pending > 0 {
		log.Printf("Warning: fetch deadline expired with %d of %d pairs pending", pending, total)
		span.SetAttributes(attribute.Int("timed_out", pending))
	}
	return bundle
}

func timeoutResult(entity string, kind domain.Kind) domain.FetchResult {
	return domain.FailedResult(entity, kind, fmt.Errorf("%w: %s %s", domain.ErrTimeout, entity, kind))
}

// dedupe drops empty and repeated entities, keeping first-seen order.
func dedupe(entities []string) []string {
	seen := make(map[string]bool, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
