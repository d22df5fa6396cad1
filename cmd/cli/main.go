package main

import (
	"context"
	"log"
	"time"

	"stella/internal/assistant"
	"stella/internal/cache"
	"stella/internal/config"
	"stella/internal/domain"
	"stella/internal/fetcher"
	"stella/internal/ml/momentum"
	"stella/internal/provider"
	"stella/internal/repository"
	"stella/internal/router"
	"stella/internal/tui"
	"stella/pkg/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc        = godotenv.Load
	loadConfigFunc     = config.Load
	initTracerFunc     = tracing.InitTracer
	newRedisClientFunc = cache.NewClient
	newPgxPoolFunc     = pgxpool.New
	runTUIFunc         = tui.Run
)

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	var fetchCache fetcher.Cache
	if rdb, rerr := newRedisClientFunc(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB); rerr != nil {
		log.Printf("Warning: invalid redis configuration, running without cache: %v", rerr)
	} else {
		ttls := cache.TTLsFromSeconds(cfg.PriceTTLSecs, cfg.HighlightTTLSecs, cfg.NewsTTLSecs, cfg.OverviewTTLSecs)
		fetchCache = cache.New(rdb, ttls, tracer)
	}

	var asstArchive assistant.Archive
	if cfg.DatabaseURL != "" {
		pool, perr := newPgxPoolFunc(ctx, cfg.DatabaseURL)
		if perr != nil {
			log.Printf("Warning: postgres unavailable, archive lookups disabled: %v", perr)
		} else {
			defer pool.Close()
			asstArchive = repository.NewArchiveRepository(pool, tracer)
		}
	}

	f := fetcher.New(fetchCache, buildChains(cfg, tracer), time.Duration(cfg.FetchTimeoutSecs)*time.Second, tracer)
	orch := fetcher.NewOrchestrator(f, fetcher.NewPool(cfg.WorkerPoolSize), time.Duration(cfg.QueryTimeoutSecs)*time.Second, tracer)

	var llm assistant.LLMClient
	if cfg.OpenAIAPIKey != "" {
		llm = assistant.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	classifier := assistant.NewClassifier(llm, cfg.OpenAIModel, tracer)
	qr := router.New(classifier, tracer)
	asst := assistant.New(qr, orch, llm, cfg.OpenAIModel, asstArchive, momentum.NewService().Signal, tracer)

	if err := runTUIFunc(asst); err != nil {
		log.Fatalf("tui exited with error: %v", err)
	}
}

// buildChains assembles the per-kind provider fallback chains from whatever
// upstreams are configured, same ordering as the HTTP server.
func buildChains(cfg *config.Config, tracer trace.Tracer) map[domain.Kind][]fetcher.Provider {
	yahoo := provider.NewYahoo(tracer)
	chains := map[domain.Kind][]fetcher.Provider{
		domain.KindPriceData: {yahoo},
		domain.KindHighlight: {yahoo},
		domain.KindNews:      {yahoo},
	}
	if cfg.AlphaVantageAPIKey != "" {
		av := provider.NewAlphaVantage(cfg.AlphaVantageAPIKey, cfg.AlphaVantageRPM, tracer)
		chains[domain.KindPriceData] = append(chains[domain.KindPriceData], av)
		chains[domain.KindHighlight] = append(chains[domain.KindHighlight], av)
		chains[domain.KindNews] = append([]fetcher.Provider{av}, chains[domain.KindNews]...)
		chains[domain.KindOverview] = []fetcher.Provider{av}
	}
	if cfg.BraveAPIKey != "" {
		chains[domain.KindNews] = append(chains[domain.KindNews], provider.NewBrave(cfg.BraveAPIKey, tracer))
	}
	return chains
}
