package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stella/internal/assistant"
	"stella/internal/bot"
	"stella/internal/cache"
	"stella/internal/config"
	"stella/internal/domain"
	"stella/internal/fetcher"
	"stella/internal/handler"
	"stella/internal/job"
	"stella/internal/mcp"
	"stella/internal/ml/momentum"
	"stella/internal/provider"
	"stella/internal/repository"
	"stella/internal/router"
	"stella/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "stella/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	newRedisClientFunc     = cache.NewClient
	newPgxPoolFunc         = pgxpool.New
	startWarmupFunc        = func(w *job.Warmup, ctx context.Context) { go w.Start(ctx) }
	startTrainingFunc      = func(tr *job.Training, ctx context.Context) { go tr.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Stella API
// @version         1.0
// @description     Market research assistant: routed financial queries over cached multi-provider market data.

// @host      localhost:8080
// @BasePath  /
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

	// Cache store; a dead or absent redis degrades to cold-cache fetches.
	var (
		rdb        *redis.Client
		fetchCache fetcher.Cache
	)
	rdb, err = newRedisClientFunc(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Printf("Warning: invalid redis configuration, running without cache: %v", err)
	} else {
		ttls := cache.TTLsFromSeconds(cfg.PriceTTLSecs, cfg.HighlightTTLSecs, cfg.NewsTTLSecs, cfg.OverviewTTLSecs)
		fetchCache = cache.New(rdb, ttls, tracer)
	}

	// Postgres-backed repositories; without DATABASE_URL the archive,
	// snapshots, and persisted chat history all stay disabled.
	var (
		pool          *pgxpool.Pool
		asstArchive   assistant.Archive
		archiveReader handler.ArchiveReader
		docWriter     job.DocumentWriter
		snapshotStore job.SnapshotStore
		historian     job.SnapshotHistorian
		historyStore  bot.HistoryStore
	)
	if cfg.DatabaseURL != "" {
		pool, err = newPgxPoolFunc(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: postgres unavailable, archive and snapshots disabled: %v", err)
		} else {
			defer pool.Close()
			archiveRepo := repository.NewArchiveRepository(pool, tracer)
			snapshotRepo := repository.NewSnapshotRepository(pool, tracer)
			asstArchive = archiveRepo
			archiveReader = archiveRepo
			docWriter = archiveRepo
			snapshotStore = snapshotRepo
			historian = snapshotRepo
			historyStore = repository.NewHistoryRepository(pool, tracer)
		}
	}

	// Fetch pipeline: provider chains behind the cache, fanned out by the
	// orchestrator's worker pool.
	f := fetcher.New(fetchCache, buildChains(cfg, tracer), time.Duration(cfg.FetchTimeoutSecs)*time.Second, tracer)
	orch := fetcher.NewOrchestrator(f, fetcher.NewPool(cfg.WorkerPoolSize), time.Duration(cfg.QueryTimeoutSecs)*time.Second, tracer)

	// LLM capabilities; nil client keeps every path deterministic.
	var llm assistant.LLMClient
	if cfg.OpenAIAPIKey != "" {
		llm = assistant.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	classifier := assistant.NewClassifier(llm, cfg.OpenAIModel, tracer)
	qr := router.New(classifier, tracer)

	sigSvc := momentum.NewService()
	asst := assistant.New(qr, orch, llm, cfg.OpenAIModel, asstArchive, sigSvc.Signal, tracer)

	// Background jobs (stopped by ctx cancel).
	var composer job.DocumentComposer
	if llm != nil {
		composer = asst
	}
	warmup := job.NewWarmup(tracer, orch, snapshotStore, sigSvc, composer, docWriter,
		cfg.Watchlist, time.Duration(cfg.WarmupIntervalSecs)*time.Second)
	startWarmupFunc(warmup, ctx)

	training := job.NewTraining(tracer, historian, sigSvc, cfg.ModelPath, cfg.TrainHourUTC)
	startTrainingFunc(training, ctx)

	// Start Telegram bot
	startTelegramBotFunc(cfg.TelegramBotToken, asst, historyStore, cfg.HistoryWindow, tracer)

	// Create handlers and routes
	ready := map[string]handler.ReadyCheck{}
	if rdb != nil {
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if pool != nil {
		ready["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	h := handler.New(tracer, asst, orch, archiveReader, sigSvc.Signal, ready)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("stella"))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	// Optional MCP tool server on its own listener.
	var mcpSrv *http.Server
	if cfg.MCPHTTPEnabled {
		mcpSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort),
			Handler: mcp.New(asst, tracer).Handler(),
		}
		go func() {
			log.Printf("MCP server listening on %s", mcpSrv.Addr)
			if err := startHTTPServerFunc(mcpSrv); err != nil && err != http.ErrServerClosed {
				log.Printf("Warning: MCP server stopped: %v", err)
			}
		}()
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if mcpSrv != nil {
		if err := shutdownHTTPServerFunc(mcpSrv, shutdownCtx); err != nil {
			log.Printf("Warning: MCP server forced to shutdown: %v", err)
		}
	}
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// buildChains assembles the per-kind provider fallback chains from whatever
// upstreams are configured. Yahoo is the free primary; Alpha Vantage takes
// over overviews and leads news when keyed; Brave is the news last resort.
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
