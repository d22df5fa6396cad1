package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type stubProvider struct {
	name         string
	payload      json.RawMessage
	err          error
	delay        time.Duration
	failEntities map[string]bool

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, entity string, _ domain.Kind) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, ctx.Err())
		}
	}
	if s.failEntities[entity] {
		return nil, fmt.Errorf("%w: %s has no data for %s", domain.ErrProviderUnavailable, s.name, entity)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, entity string, kind domain.Kind) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[entity+"/"+string(kind)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), b...), true
}

func (c *memCache) Put(_ context.Context, entity string, kind domain.Kind, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[entity+"/"+string(kind)] = append([]byte(nil), payload...)
	c.puts++
}

func (c *memCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func TestFetchCacheHitSkipsProviders(t *testing.T) {
	t.Parallel()

	c := newMemCache()
	c.Put(context.Background(), "TSLA", domain.KindNews, json.RawMessage(`[{"title":"cached"}]`))
	p := &stubProvider{name: "yahoo", payload: json.RawMessage(`[{"title":"live"}]`)}
	f := New(c, map[domain.Kind][]Provider{domain.KindNews: {p}}, time.Second, testTracer)

	res := f.Fetch(context.Background(), "TSLA", domain.KindNews)
	if res.Source != domain.SourceCache {
		t.Fatalf("source = %q, want cache", res.Source)
	}
	if string(res.Payload) != `[{"title":"cached"}]` {
		t.Fatalf("payload = %s", res.Payload)
	}
	if p.callCount() != 0 {
		t.Fatalf("provider called %d times on a cache hit", p.callCount())
	}
}

func TestFetchFallsBackToLaterProvider(t *testing.T) {
	t.Parallel()

	bad1 := &stubProvider{name: "yahoo", err: fmt.Errorf("%w: yahoo quote: status 500", domain.ErrProviderUnavailable)}
	bad2 := &stubProvider{name: "alphavantage", err: fmt.Errorf("%w: throttled", domain.ErrProviderUnavailable)}
	good := &stubProvider{name: "brave", payload: json.RawMessage(`[{"title":"ok"}]`)}
	c := newMemCache()
	f := New(c, map[domain.Kind][]Provider{domain.KindNews: {bad1, bad2, good}}, time.Second, testTracer)

	res := f.Fetch(context.Background(), "TSLA", domain.KindNews)
	if res.Source != domain.Source("brave") {
		t.Fatalf("source = %q, want brave", res.Source)
	}
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if string(res.Payload) != `[{"title":"ok"}]` {
		t.Fatalf("payload = %s", res.Payload)
	}
	if c.putCount() != 1 {
		t.Fatalf("cache writes = %d, want 1", c.putCount())
	}

	// The successful payload must now serve from cache with zero provider
	// traffic.
	b1, b2, g := bad1.callCount(), bad2.callCount(), good.callCount()
	res = f.Fetch(context.Background(), "TSLA", domain.KindNews)
	if res.Source != domain.SourceCache {
		t.Fatalf("second fetch source = %q, want cache", res.Source)
	}
	if bad1.callCount() != b1 || bad2.callCount() != b2 || good.callCount() != g {
		t.Fatal("providers were invoked on the second fetch")
	}
}

func TestFetchExhaustionCachesNothing(t *testing.T) {
	t.Parallel()

	bad1 := &stubProvider{name: "yahoo", err: domain.ErrProviderUnavailable}
	bad2 := &stubProvider{name: "alphavantage", err: domain.ErrProviderUnavailable}
	c := newMemCache()
	f := New(c, map[domain.Kind][]Provider{domain.KindPriceData: {bad1, bad2}}, time.Second, testTracer)

	res := f.Fetch(context.Background(), "TSLA", domain.KindPriceData)
	if res.Source != domain.SourceNone {
		t.Fatalf("source = %q, want none", res.Source)
	}
	if !errors.Is(res.Err, domain.ErrAllProvidersExhausted) {
		t.Fatalf("err = %v, want ErrAllProvidersExhausted", res.Err)
	}
	if res.Error == "" {
		t.Fatal("serialized error message missing")
	}
	if c.putCount() != 0 {
		t.Fatalf("cache writes = %d after exhaustion, want 0", c.putCount())
	}
	if bad1.callCount() != 1 || bad2.callCount() != 1 {
		t.Fatalf("calls = %d/%d, want one per provider", bad1.callCount(), bad2.callCount())
	}
}

func TestFetchRejectsUnusablePayload(t *testing.T) {
	t.Parallel()

	empty := &stubProvider{name: "yahoo", payload: json.RawMessage(`[]`)}
	garbage := &stubProvider{name: "alphavantage", payload: json.RawMessage(`<html>rate limited</html>`)}
	good := &stubProvider{name: "brave", payload: json.RawMessage(`[{"title":"ok"}]`)}
	f := New(newMemCache(), map[domain.Kind][]Provider{domain.KindNews: {empty, garbage, good}}, time.Second, testTracer)

	res := f.Fetch(context.Background(), "TSLA", domain.KindNews)
	if res.Source != domain.Source("brave") {
		t.Fatalf("source = %q, want brave", res.Source)
	}
	if empty.callCount() != 1 || garbage.callCount() != 1 || good.callCount() != 1 {
		t.Fatal("every provider in the chain should have been tried once")
	}
}

func TestFetchPerCallTimeout(t *testing.T) {
	t.Parallel()

	slow := &stubProvider{name: "yahoo", delay: 300 * time.Millisecond, payload: json.RawMessage(`{"quote":{"symbol":"TSLA"}}`)}
	fast := &stubProvider{name: "alphavantage", payload: json.RawMessage(`{"quote":{"symbol":"TSLA","price":250.5}}`)}
	f := New(newMemCache(), map[domain.Kind][]Provider{domain.KindPriceData: {slow, fast}}, 30*time.Millisecond, testTracer)

	start := time.Now()
	res := f.Fetch(context.Background(), "TSLA", domain.KindPriceData)
	if res.Source != domain.Source("alphavantage") {
		t.Fatalf("source = %q, want alphavantage after the slow provider times out", res.Source)
	}
	if elapsed := time.Since(start); elapsed >= 300*time.Millisecond {
		t.Fatalf("fetch took %v, the slow provider's delay leaked past its timeout", elapsed)
	}
}

func TestFetchEmptyChainExhaustsImmediately(t *testing.T) {
	t.Parallel()

	f := New(newMemCache(), map[domain.Kind][]Provider{}, time.Second, testTracer)
	res := f.Fetch(context.Background(), "TSLA", domain.KindOverview)
	if res.Source != domain.SourceNone || !errors.Is(res.Err, domain.ErrAllProvidersExhausted) {
		t.Fatalf("got source=%q err=%v", res.Source, res.Err)
	}
}

func TestFetchNilCacheStillFetches(t *testing.T) {
	t.Parallel()

	p := &stubProvider{name: "yahoo", payload: json.RawMessage(`{"quote":{"symbol":"TSLA"}}`)}
	f := New(nil, map[domain.Kind][]Provider{domain.KindHighlight: {p}}, time.Second, testTracer)

	res := f.Fetch(context.Background(), "TSLA", domain.KindHighlight)
	if res.Source != domain.Source("yahoo") {
		t.Fatalf("source = %q, want yahoo", res.Source)
	}
	res = f.Fetch(context.Background(), "TSLA", domain.KindHighlight)
	if res.Source != domain.Source("yahoo") || p.callCount() != 2 {
		t.Fatal("nil cache should mean every fetch goes to providers")
	}
}

func TestUsable(t *testing.T) {
	t.Parallel()

	reject := []string{"", "  ", "null", "{}", "[]", "not json", "<html></html>"}
	for _, in := range reject {
		if usable(json.RawMessage(in)) {
			t.Errorf("usable(%q) = true, want false", in)
		}
	}
	accept := []string{`{"a":1}`, `[{"title":"x"}]`, `"text"`, `42`}
	for _, in := range accept {
		if !usable(json.RawMessage(in)) {
			t.Errorf("usable(%q) = false, want true", in)
		}
	}
}
