// Command parking answers interactive questions about historical street
// parking availability around an intersection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/street-parking-odds/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/street-parking-odds/internal/adapter/kafka"
	"github.com/couchcryptid/street-parking-odds/internal/adapter/snapshot"
	"github.com/couchcryptid/street-parking-odds/internal/config"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
	"github.com/couchcryptid/street-parking-odds/internal/query"
	"github.com/couchcryptid/street-parking-odds/internal/session"
	"github.com/couchcryptid/street-parking-odds/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataset := &httpadapter.DatasetState{}
	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, dataset, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	var cache *snapshot.Cache
	if cfg.CacheEnabled {
		cache = snapshot.New(cfg.CachePath, logger, metrics)
	}

	st, err := loadStore(ctx, cfg, cache, logger, metrics)
	if err != nil {
		var le *store.LoadError
		if errors.As(err, &le) {
			logger.Error("failed to load dataset", "source", le.Source, "error", le.Err)
		} else {
			logger.Error("failed to load dataset", "error", err)
		}
		shutdown(cfg, srv, nil, nil, logger)
		return 1
	}
	dataset.Set(st)

	opts := []query.Option{query.WithCacheSize(cfg.QueryCacheSize)}
	if cfg.MatchMode == config.MatchModeWindow {
		opts = append(opts, query.WithWindowMatch(cfg.MatchWindow))
		logger.Info("time matching uses a window", "window", cfg.MatchWindow)
	}
	engine := query.New(st.Observations(), metrics, opts...)

	var sessOpts []session.Option
	var audit *kafkaadapter.AuditWriter
	if cfg.AuditEnabled {
		audit = kafkaadapter.NewAuditWriter(cfg, logger, metrics)
		sessOpts = append(sessOpts, session.WithPublisher(audit))
		logger.Info("query audit enabled", "topic", cfg.KafkaAuditTopic, "brokers", cfg.KafkaBrokers)
	}

	sess := session.New(engine, st.Regions(), os.Stdin, os.Stdout, logger, sessOpts...)
	err = sess.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
	case err != nil:
		logger.Error("session error", "error", err)
	}

	shutdown(cfg, srv, audit, func(ctx context.Context) {
		if cache == nil {
			return
		}
		if err := cache.Save(ctx, st); err != nil {
			logger.Error("failed to save snapshot", "error", err)
		}
	}, logger)
	return exitCode(err)
}

// exitCode maps the session result to a process status. An interrupt is a
// normal exit.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

// loadStore prefers the snapshot and falls back to the source export. An
// unreadable snapshot is logged and ignored.
func loadStore(ctx context.Context, cfg *config.Config, cache *snapshot.Cache, logger *slog.Logger, metrics *observability.Metrics) (*store.Store, error) {
	if cache != nil {
		st, ok, err := cache.Load(ctx)
		switch {
		case err != nil:
			logger.Warn("ignoring unreadable snapshot", "path", cache.Path(), "error", err)
		case ok:
			metrics.DatasetRows.Set(float64(st.Len()))
			return st, nil
		}
	}

	loader := store.NewLoader(cfg.FetchTimeout, cfg.FetchMaxElapsed, logger, metrics)
	return loader.Load(ctx, cfg.DatasetURL)
}

// shutdown persists the store and releases resources. The snapshot write is
// not bounded by SHUTDOWN_TIMEOUT and is not cut short by the interrupt that
// ended the session.
func shutdown(cfg *config.Config, srv *httpadapter.Server, audit *kafkaadapter.AuditWriter, persist func(context.Context), logger *slog.Logger) {
	logger.Info("shutting down")

	if persist != nil {
		persist(context.Background())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if audit != nil {
		if err := audit.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
