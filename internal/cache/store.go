package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"stella/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisClient is the slice of go-redis the store needs; *redis.Client
// satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Entry is the persisted record for one (entity, kind) key. CreatedAt and
// TTL travel with the payload so freshness survives a backing store that
// ignores native expiration.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
}

// Store is a TTL cache for fetched market data, keyed by (entity, kind) with
// expiration policy owned by the kind. Redis being down or returning garbage
// degrades to a cold cache: Get reports a miss, Put drops the write, and the
// caller never sees an error.
type Store struct {
	rdb    RedisClient
	ttls   map[domain.Kind]time.Duration
	tracer trace.Tracer
}

func New(rdb RedisClient, ttls map[domain.Kind]time.Duration, tracer trace.Tracer) *Store {
	if len(ttls) == 0 {
		ttls = DefaultTTLs()
	}
	return &Store{rdb: rdb, ttls: ttls, tracer: tracer}
}

// DefaultTTLs is the stock freshness policy: minutes for spot data, hours
// for prose that changes slowly.
func DefaultTTLs() map[domain.Kind]time.Duration {
	return map[domain.Kind]time.Duration{
		domain.KindPriceData: 5 * time.Minute,
		domain.KindHighlight: 5 * time.Minute,
		domain.KindNews:      12 * time.Hour,
		domain.KindOverview:  24 * time.Hour,
	}
}

// TTLsFromSeconds builds a TTL policy from configured whole-second values,
// falling back to the defaults for non-positive entries.
func TTLsFromSeconds(price, highlight, news, overview int) map[domain.Kind]time.Duration {
	ttls := DefaultTTLs()
	if price > 0 {
		ttls[domain.KindPriceData] = time.Duration(price) * time.Second
	}
	if highlight > 0 {
		ttls[domain.KindHighlight] = time.Duration(highlight) * time.Second
	}
	if news > 0 {
		ttls[domain.KindNews] = time.Duration(news) * time.Second
	}
	if overview > 0 {
		ttls[domain.KindOverview] = time.Duration(overview) * time.Second
	}
	return ttls
}

// Key derives the deterministic storage key for an (entity, kind) pair so
// concurrent callers requesting the same data converge on the same record.
func Key(entity string, kind domain.Kind) string {
	return "stella:" + string(kind) + ":" + strings.ToUpper(strings.TrimSpace(entity))
}

// TTL reports the expiration policy for a kind.
func (s *Store) TTL(kind domain.Kind) time.Duration {
	if d, ok := s.ttls[kind]; ok {
		return d
	}
	return 5 * time.Minute
}

// Get returns a copy of the cached payload for (entity, kind). An expired,
// corrupt, or unreachable entry is a miss, indistinguishable from an absent
// one.
func (s *Store) Get(ctx context.Context, entity string, kind domain.Kind) (json.RawMessage, bool) {
	ctx, span := s.tracer.Start(ctx, "cache.get", trace.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	key := Key(entity, kind)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, false
	}
	if err != nil {
		log.Printf("Warning: cache read for %s failed: %v", key, err)
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		log.Printf("Warning: cache entry for %s is corrupt, dropping: %v", key, err)
		_ = s.rdb.Del(ctx, key).Err()
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, false
	}
	if e.TTL <= 0 || time.Since(e.CreatedAt) >= e.TTL {
		_ = s.rdb.Del(ctx, key).Err()
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, false
	}

	span.SetAttributes(attribute.Bool("hit", true))
	return append(json.RawMessage(nil), e.Payload...), true
}

// Put stores a payload under (entity, kind) with the kind's TTL. Writes are
// last-write-wins; failures are logged and swallowed.
func (s *Store) Put(ctx context.Context, entity string, kind domain.Kind, payload json.RawMessage) {
	ctx, span := s.tracer.Start(ctx, "cache.put", trace.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	ttl := s.TTL(kind)
	data, err := json.Marshal(Entry{
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now(),
		TTL:       ttl,
	})
	if err != nil {
		log.Printf("Warning: cache encode for %s/%s failed: %v", entity, kind, err)
		return
	}
	if err := s.rdb.Set(ctx, Key(entity, kind), data, ttl).Err(); err != nil {
		log.Printf("Warning: cache write for %s/%s failed: %v", entity, kind, err)
	}
}

// Invalidate removes the entry for (entity, kind), if any.
func (s *Store) Invalidate(ctx context.Context, entity string, kind domain.Kind) {
	ctx, span := s.tracer.Start(ctx, "cache.invalidate", trace.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	if err := s.rdb.Del(ctx, Key(entity, kind)).Err(); err != nil {
		log.Printf("Warning: cache invalidate for %s/%s failed: %v", entity, kind, err)
	}
}
