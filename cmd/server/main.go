package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Callhub/internal/adapters/http"
	wssignal "github.com/dkeye/Callhub/internal/adapters/signal"
	"github.com/dkeye/Callhub/internal/app"
	"github.com/dkeye/Callhub/internal/app/orch"
	"github.com/dkeye/Callhub/internal/app/tasks"
	"github.com/dkeye/Callhub/internal/config"
	"github.com/dkeye/Callhub/internal/platform/metrics"
	"github.com/dkeye/Callhub/internal/platform/telemetry"
	"github.com/dkeye/Callhub/internal/plugins/push"
	"github.com/dkeye/Callhub/internal/plugins/redis"
	"github.com/dkeye/Callhub/internal/plugins/sqlstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Error().Err(err).Msg("telemetry init failed, tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	queue := tasks.NewQueue(cfg.Tasks.Workers, cfg.Tasks.QueueSize, cfg.Tasks.Timeout, m)
	queue.Start(context.WithoutCancel(ctx))

	deps := orch.Deps{
		Conns:           app.NewConnections(),
		Policy:          app.SimplePolicy{},
		Tasks:           queue,
		Metrics:         m,
		InboxSize:       cfg.InboxSize,
		PushConcurrency: cfg.Push.Concurrency,
	}

	var db *sqlstore.DB
	if cfg.Database.DSN != "" {
		db, err = sqlstore.Open(ctx, cfg.Database)
		if err != nil {
			log.Error().Err(err).Msg("database unavailable, call history and receipts disabled")
			db = nil
		} else {
			users := sqlstore.NewUserRepo(db)
			deps.History = sqlstore.NewCallRepo(db)
			deps.Directory = users
			deps.Tokens = users
			deps.Receipts = sqlstore.NewReceiptRepo(db)
		}
	} else {
		log.Warn().Msg("no database configured, call history and receipts disabled")
	}

	if cfg.Push.Endpoint != "" {
		deps.Pusher = push.NewGatewayClient(cfg.Push)
	}

	if cfg.Redis.URL != "" {
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Error().Err(err).Msg("redis unavailable, presence mirror disabled")
		} else {
			defer rdb.Close()
			deps.Mirror = redis.NewPresenceMirror(rdb, cfg.Redis.OnlineKey, cfg.Redis.Channel)
		}
	}

	dispatcher := orch.New(deps)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = dispatcher.Run(ctx)
	}()

	limiter := wssignal.NewEventRateLimiter(cfg.RateLimit.Events, cfg.RateLimit.Interval)
	ctrl := wssignal.NewSignalWSController(dispatcher, limiter, wssignal.OptionsFrom(cfg))

	r := router.SetupRouter(ctx, cfg, dispatcher, ctrl, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Callhub server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-loopDone
	queue.Close()
	if db != nil {
		_ = db.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
