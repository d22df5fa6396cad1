package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"stella/internal/bot"
	"stella/internal/config"
	"stella/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubServerDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origNewRedis := newRedisClientFunc
	origNewPool := newPgxPoolFunc
	origStartWarmup := startWarmupFunc
	origStartTraining := startTrainingFunc
	origStartTelegram := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{RedisURL: "localhost:6379", Watchlist: []string{"TSLA"}, WarmupIntervalSecs: 1}
	}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newRedisClientFunc = func(url, password string, db int) (*redis.Client, error) {
		return nil, errors.New("redis disabled in test")
	}
	newPgxPoolFunc = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
		return nil, errors.New("postgres disabled in test")
	}
	startWarmupFunc = func(*job.Warmup, context.Context) {}
	startTrainingFunc = func(*job.Training, context.Context) {}
	startTelegramBotFunc = func(string, bot.Assistant, bot.HistoryStore, int, trace.Tracer) {}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		newRedisClientFunc = origNewRedis
		newPgxPoolFunc = origNewPool
		startWarmupFunc = origStartWarmup
		startTrainingFunc = origStartTraining
		startTelegramBotFunc = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
