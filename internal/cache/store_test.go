package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stella/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error

	getCalls int
	delCalls int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		b, _ := json.Marshal(v)
		f.data[key] = b
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.getCalls++
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.delCalls++
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestStoreRoundTripAllKinds(t *testing.T) {
	t.Parallel()

	store := New(newFakeRedis(), nil, testTracer)
	payload := json.RawMessage(`{"price":123.45,"symbol":"TSLA"}`)

	for _, kind := range domain.AllKinds {
		store.Put(context.Background(), "TSLA", kind, payload)
		got, ok := store.Get(context.Background(), "TSLA", kind)
		if !ok {
			t.Fatalf("kind %s: expected hit after put", kind)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("kind %s: payload = %s, want %s", kind, got, payload)
		}
	}
}

func TestStoreExpiredEntryIsMiss(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	store := New(rdb, nil, testTracer)

	stale, _ := json.Marshal(Entry{
		Payload:   json.RawMessage(`{"old":true}`),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		TTL:       time.Hour,
	})
	rdb.data[Key("TSLA", domain.KindNews)] = stale

	if _, ok := store.Get(context.Background(), "TSLA", domain.KindNews); ok {
		t.Fatal("expired entry must read as a miss")
	}
	if _, still := rdb.data[Key("TSLA", domain.KindNews)]; still {
		t.Fatal("expired entry should be dropped on read")
	}
}

func TestStoreCorruptEntryIsMiss(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	store := New(rdb, nil, testTracer)
	rdb.data[Key("AAPL", domain.KindOverview)] = []byte("not json{{")

	if _, ok := store.Get(context.Background(), "AAPL", domain.KindOverview); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
	if rdb.delCalls == 0 {
		t.Fatal("corrupt entry should be dropped")
	}
}

func TestStoreFailsOpen(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	rdb.setErr = errors.New("connection refused")
	store := New(rdb, nil, testTracer)

	// Neither operation may panic or surface the backend error.
	store.Put(context.Background(), "TSLA", domain.KindPriceData, json.RawMessage(`{"p":1}`))
	if _, ok := store.Get(context.Background(), "TSLA", domain.KindPriceData); ok {
		t.Fatal("unreachable backend must read as a miss")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := New(newFakeRedis(), nil, testTracer)
	store.Put(context.Background(), "NVDA", domain.KindPriceData, json.RawMessage(`{"p":1}`))

	first, ok := store.Get(context.Background(), "NVDA", domain.KindPriceData)
	if !ok {
		t.Fatal("expected hit")
	}
	for i := range first {
		first[i] = 'x'
	}

	second, ok := store.Get(context.Background(), "NVDA", domain.KindPriceData)
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(second, []byte(`{"p":1}`)) {
		t.Fatalf("cached payload was mutated through a returned reference: %s", second)
	}
}

func TestStoreInvalidate(t *testing.T) {
	t.Parallel()

	store := New(newFakeRedis(), nil, testTracer)
	store.Put(context.Background(), "MSFT", domain.KindNews, json.RawMessage(`[]`))
	store.Invalidate(context.Background(), "MSFT", domain.KindNews)

	if _, ok := store.Get(context.Background(), "MSFT", domain.KindNews); ok {
		t.Fatal("entry should be gone after invalidate")
	}
}

func TestStorePutOverwrites(t *testing.T) {
	t.Parallel()

	store := New(newFakeRedis(), nil, testTracer)
	store.Put(context.Background(), "TSLA", domain.KindPriceData, json.RawMessage(`{"p":1}`))
	store.Put(context.Background(), "TSLA", domain.KindPriceData, json.RawMessage(`{"p":2}`))

	got, ok := store.Get(context.Background(), "TSLA", domain.KindPriceData)
	if !ok || !bytes.Equal(got, []byte(`{"p":2}`)) {
		t.Fatalf("got %s, want last write", got)
	}
}

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	if Key("tsla", domain.KindNews) != Key(" TSLA ", domain.KindNews) {
		t.Fatal("equivalent entities must map to the same key")
	}
	if Key("TSLA", domain.KindNews) == Key("TSLA", domain.KindOverview) {
		t.Fatal("kinds must not share keys")
	}
}

func TestTTLsFromSeconds(t *testing.T) {
	t.Parallel()

	ttls := TTLsFromSeconds(60, 0, 3600, -1)
	if ttls[domain.KindPriceData] != time.Minute {
		t.Fatalf("price ttl = %v", ttls[domain.KindPriceData])
	}
	if ttls[domain.KindNews] != time.Hour {
		t.Fatalf("news ttl = %v", ttls[domain.KindNews])
	}
	// Non-positive values keep defaults.
	if ttls[domain.KindHighlight] != 5*time.Minute || ttls[domain.KindOverview] != 24*time.Hour {
		t.Fatalf("defaults not preserved: %v", ttls)
	}
}
