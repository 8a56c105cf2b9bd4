// Command schedulerd wires config, a Redis client, the scheduler core,
// and the admin HTTP surface together (SPEC_FULL.md §4.6). The
// dispatcher/worker/executor that actually consume the delayed queue are
// explicitly out of scope (spec.md §1); demoPoller (poller.go) only logs
// instances that became runnable and drops them from the delayed set, so
// the binary has something observable to run against — it is not a real
// dispatcher.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jobrepeat/scheduler/config"
	"github.com/jobrepeat/scheduler/internal/clock"
	"github.com/jobrepeat/scheduler/internal/health"
	"github.com/jobrepeat/scheduler/internal/keys"
	ctxlog "github.com/jobrepeat/scheduler/internal/log"
	"github.com/jobrepeat/scheduler/internal/metrics"
	"github.com/jobrepeat/scheduler/internal/redisstore"
	"github.com/jobrepeat/scheduler/internal/scheduler"
	httptransport "github.com/jobrepeat/scheduler/internal/transport/http"
	"github.com/jobrepeat/scheduler/internal/transport/http/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rdb, err := redisstore.NewClient(cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	k := keys.New(cfg.Namespace)
	store := redisstore.New(rdb, k)

	metrics.Register()
	checker := health.NewChecker(store, logger, prometheus.DefaultRegisterer)

	core := scheduler.New(store, k, clock.System{}, cfg.Namespace)

	schedulerHandler := handler.NewSchedulerHandler(core, logger)
	router := httptransport.NewRouter(logger, schedulerHandler, checker, []byte(cfg.AdminTokenSecret))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("admin server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	poller := newDemoPoller(rdb, k, logger, time.Duration(cfg.DemoPollIntervalSec)*time.Second)
	go poller.start(ctx)

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
