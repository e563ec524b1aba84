package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amoylab/tether/internal/auth/credential"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/internal/eventbus"
	"github.com/amoylab/tether/internal/session"
	"github.com/amoylab/tether/pkg/logger"
	"github.com/amoylab/tether/pkg/metrics"
	"github.com/amoylab/tether/pkg/trace"
	"github.com/amoylab/tether/pkg/version"

	"go.uber.org/zap"
)

// app is the composition root shared by every subcommand
type app struct {
	logger  *zap.Logger
	cfg     *config.TetherConfig
	store   credential.Store
	bus     eventbus.Bus
	metrics *metrics.Metrics
	client  *session.Client

	closers []func(context.Context) error
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, cfgPath, err := config.LoadConfig[config.TetherConfig](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", cfgPath, err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	lg.Info("Loaded configuration", zap.String("path", cfgPath), zap.String("version", version.Get()))

	a := &app{logger: lg, cfg: cfg}

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		lg.Warn("failed to initialize tracing", zap.Error(err))
	} else {
		a.closers = append(a.closers, shutdownTracing)
	}

	a.store, err = credential.NewStore(lg, &cfg.Credential)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	a.bus, err = eventbus.NewBus(lg, &cfg.EventBus)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.bus.Close() })

	opts := []session.Option{session.WithHTTPClient(&http.Client{
		Timeout:   cfg.API.Timeout,
		Transport: trace.Transport(nil),
	})}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics)
		opts = append(opts, session.WithMetrics(a.metrics))
	}
	a.client = session.NewClient(lg, &cfg.API, a.store, a.bus, opts...)

	return a, nil
}

// serveMetrics exposes the metrics registry until ctx is done
func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}

	go func() {
		a.logger.Info("Serving metrics", zap.String("addr", a.cfg.Metrics.Addr), zap.String("path", a.cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, srv.Shutdown)
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
