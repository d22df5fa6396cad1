package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"stella/internal/config"
	"stella/internal/tui"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	restore := stubCLIDeps()
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

func stubCLIDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origNewRedis := newRedisClientFunc
	origNewPool := newPgxPoolFunc
	origRunTUI := runTUIFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{RedisURL: "localhost:6379"}
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
	runTUIFunc = func(tui.Assistant) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		newRedisClientFunc = origNewRedis
		newPgxPoolFunc = origNewPool
		runTUIFunc = origRunTUI
	}
}
