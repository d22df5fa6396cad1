package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc        = godotenv.Load
	loadConfigFunc     = config.Load
	initTracerFunc     = tracing.InitTracer
	newRedisClientFunc = cache.NewClient
	newPgxPoolFunc     = pgxpool.New
	newWishServerFunc  = wish.NewServer
	setupSignalNotify  = ossignal.Notify
	waitForSignalFunc  = func(quit <-chan os.Signal) { <-quit }
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

	// Shared fetch pipeline for every SSH session.
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

	// Build Wish SSH server
	addr := fmt.Sprintf("%s:%d", cfg.SSHHost, cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		// Open access: any key connects, but the fingerprint goes in the log.
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			log.Printf("SSH key accepted: user=%s fingerprint=%s", ctx.User(), gossh.FingerprintSHA256(key))
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				model := tui.New(asst)
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create SSH server: %v", err)
	}

	if srv != nil {
		go func() {
			log.Printf("SSH server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("SSH server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SSH server shutdown error: %v", err)
		}
	}

	log.Println("SSH server exited")
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
