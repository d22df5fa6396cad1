package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCallTimeout = 10 * time.Second
	cacheWriteTimeout  = 2 * time.Second
)

// Provider is one upstream source in a fallback chain. Fetch returns a
// JSON payload for the requested kind or an error from the taxonomy in
// internal/domain; any error moves the chain on to the next provider.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, entity string, kind domain.Kind) (json.RawMessage, error)
}

// Cache is the slice of the cache store the fetcher needs; *cache.Store
// satisfies it. A nil Cache behaves like one that is permanently cold.
type Cache interface {
	Get(ctx context.Context, entity string, kind domain.Kind) (json.RawMessage, bool)
	Put(ctx context.Context, entity string, kind domain.Kind, payload json.RawMessage)
}

// Fetcher resolves one (entity, kind) pair at a time: cache first, then the
// kind's provider chain strictly in order. Provider failures are routine and
// never escalate past the chain; only full exhaustion is reported, inside
// the FetchResult.
type Fetcher struct {
	cache       Cache
	chains      map[domain.Kind][]Provider
	callTimeout time.Duration
	tracer      trace.Tracer
}

func New(c Cache, chains map[domain.Kind][]Provider, callTimeout time.Duration, tracer trace.Tracer) *Fetcher {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Fetcher{
		cache:       c,
		chains:      chains,
		callTimeout: callTimeout,
		tracer:      tracer,
	}
}

// Fetch resolves a single (entity, kind) pair. The returned result always
// has Source set: the cache, the first provider that produced usable data,
// or none with ErrAllProvidersExhausted.
func (f *Fetcher) Fetch(ctx context.Context, entity string, kind domain.Kind) domain.FetchResult {
	ctx, span := f.tracer.Start(ctx, "fetcher.fetch", trace.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	if f.cache != nil {
		if payload, ok := f.cache.Get(ctx, entity, kind); ok {
			span.SetAttributes(attribute.String("source", string(domain.SourceCache)))
			return domain.FetchResult{
				Entity:  entity,
				Kind:    kind,
				Payload: payload,
				Source:  domain.SourceCache,
			}
		}
	}

	for _, p := range f.chains[kind] {
		payload, err := f.tryProvider(ctx, p, entity, kind)
		if err != nil {
			log.Printf("Warning: %s gave no %s for %s: %v", p.Name(), kind, entity, err)
			continue
		}

		f.cachePut(ctx, entity, kind, payload)
		span.SetAttributes(attribute.String("source", p.Name()))
		return domain.FetchResult{
			Entity:  entity,
			Kind:    kind,
			Payload: payload,
			Source:  domain.Source(p.Name()),
		}
	}

	span.SetAttributes(attribute.String("source", string(domain.SourceNone)))
	return domain.FailedResult(entity, kind,
		fmt.Errorf("%w: %s %s", domain.ErrAllProvidersExhausted, entity, kind))
}

// tryProvider runs one full provider attempt under the per-call timeout and
// rejects payloads that are not usable.
func (f *Fetcher) tryProvider(ctx context.Context, p Provider, entity string, kind domain.Kind) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	payload, err := p.Fetch(ctx, entity, kind)
	if err != nil {
		return nil, err
	}
	if !usable(payload) {
		return nil, fmt.Errorf("%w: empty or malformed payload", domain.ErrMalformedPayload)
	}
	return payload, nil
}

// cachePut writes a successful payload outside the request's cancellation
// scope. A fetch that completed its provider attempt keeps its data even
// when the orchestrator deadline fires during the write.
func (f *Fetcher) cachePut(ctx context.Context, entity string, kind domain.Kind, payload json.RawMessage) {
	if f.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	f.cache.Put(ctx, entity, kind, payload)
}

// usable rejects payloads that carry no data: empty bytes, JSON null, empty
// object or array, or bytes that are not valid JSON at all.
func usable(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	switch {
	case len(trimmed) == 0:
		return false
	case bytes.Equal(trimmed, []byte("null")):
		return false
	case bytes.Equal(trimmed, []byte("{}")):
		return false
	case bytes.Equal(trimmed, []byte("[]")):
		return false
	}
	return json.Valid(trimmed)
}
