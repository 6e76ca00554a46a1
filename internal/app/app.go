// Package app initializes and holds the long-lived services of the
// vectorizer, acting as the composition root for the binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/api"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/config"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/convert"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/gate"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/metrics"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/preprocess"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/progress"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/progress/sinks"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/trace"
)

// App owns the converter and the HTTP server built from configuration.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	converter *convert.Converter
	hub       *progress.Hub
	server    *http.Server
}

// New wires the admission gate, preprocessor, tracer and HTTP surface into
// a runnable service. It is the single place services are constructed.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	g := gate.New(gate.Config{
		MaxConcurrency: cfg.Gate.MaxConcurrency,
		QueueMax:       cfg.Gate.QueueMax,
		JobEstimate:    cfg.JobEstimate(),
		RetryMin:       time.Duration(cfg.Gate.RetryMinMs) * time.Millisecond,
		RetryMax:       time.Duration(cfg.Gate.RetryMaxMs) * time.Millisecond,
	})
	limits := convert.Limits{
		MaxUploadBytes: cfg.Limits.MaxUploadMB << 20,
		OverheadBytes:  cfg.Limits.OverheadKB << 10,
		MaxSidePx:      cfg.Limits.MaxSidePx,
		MaxMegapixels:  cfg.Limits.MaxMegapixels,
	}
	pre := preprocess.New(preprocess.Config{
		MaxDimension:  cfg.Prep.MaxDimension,
		MaxSidePx:     cfg.Limits.MaxSidePx,
		MaxMegapixels: cfg.Limits.MaxMegapixels,
		Gamma:         cfg.Prep.Gamma,
	}, logger.Named("preprocess"))
	adapter := trace.NewAdapter(trace.NewEngine(), logger.Named("trace"))

	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Warn("stage metrics unavailable", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, hubSinks...)

	converter := convert.New(g, limits, pre, adapter, hub, logger.Named("convert"))

	apiServer := api.NewServer(converter, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		converter: converter,
		hub:       hub,
		server:    srv,
	}
}

// Converter exposes the orchestrator, mainly for tests.
func (a *App) Converter() *convert.Converter {
	return a.converter
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests
// with a bounded shutdown window.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := a.hub.Close(shutdownCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	return nil
}
