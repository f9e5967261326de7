// Command heraldd runs Herald as a standalone service: the admin API, the
// delivery workers and a Prometheus /metrics endpoint.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/herald"
	"github.com/xraph/herald/api"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/queue"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/bunstore"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/store/mongo"
	"github.com/xraph/herald/store/sqlite"
)

func main() {
	configPath := flag.String("config", os.Getenv("HERALD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "heraldd:", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("heraldd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Store.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}

	var rdb goredis.UniversalClient
	if cfg.Queue.Driver == "redis" || cfg.RateLimit.Driver == "redis" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []herald.Option{
		herald.WithConfig(cfg.Herald),
		herald.WithStore(s),
		herald.WithLogger(logger),
		herald.WithMetrics(observability.NewMetrics(reg)),
		herald.WithTracer(observability.NewTracer()),
	}
	if cfg.Queue.Driver == "redis" {
		var qopts []queue.RedisOption
		if cfg.Queue.Key != "" {
			qopts = append(qopts, queue.WithKey(cfg.Queue.Key))
		}
		opts = append(opts, herald.WithQueue(queue.NewRedis(rdb, qopts...)))
	}

	h, err := herald.New(opts...)
	if err != nil {
		return err
	}
	if err := h.RegisterDefaultEventTypes(ctx); err != nil {
		return fmt.Errorf("register default event types: %w", err)
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Driver {
	case "local":
		local := ratelimit.NewLocal(cfg.RateLimit.Config)
		defer local.Close()
		limiter = local
	case "redis":
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimit.Config)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", api.NewHandler(h, limiter, logger))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	h.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("heraldd listening", "addr", cfg.Addr, "store", cfg.Store.Driver, "queue", cfg.Queue.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	timeout := cfg.Herald.ShutdownTimeout
	if timeout <= 0 {
		timeout = herald.DefaultConfig().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	srvErr := srv.Shutdown(shutdownCtx)
	stopErr := h.Stop(shutdownCtx)
	return errors.Join(srvErr, stopErr)
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bunstore.New(bun.NewDB(sqldb, pgdialect.New())), nil
	case "sqlite":
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.New(db), nil
	case "mongo":
		drv := mongodriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return mongo.New(db), nil
	default:
		return memory.New(), nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
