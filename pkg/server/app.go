package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "PsiPulse/internal/domain/repository"
	mid "PsiPulse/internal/middleware"
	"PsiPulse/internal/service/audit"
	"PsiPulse/internal/services/position"
	"PsiPulse/internal/usecase"
	"PsiPulse/pkg/config"
	xhttp "PsiPulse/pkg/http"
	applogger "PsiPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	engine    *usecase.Engine
	manager   *position.Manager
	collector *usecase.CandleCollector
	pipeline  *mid.CandlePipeline
	handler   xhttp.Handler
	archive   domrepo.ArchiveStore
	sink      *audit.KafkaSink

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. Archive and sink may
// be nil when the corresponding backends are disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.Engine,
	manager *position.Manager,
	collector *usecase.CandleCollector,
	pipeline *mid.CandlePipeline,
	handler xhttp.Handler,
	archive domrepo.ArchiveStore,
	sink *audit.KafkaSink,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		manager:   manager,
		collector: collector,
		pipeline:  pipeline,
		handler:   handler,
		archive:   archive,
		sink:      sink,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.archive != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.archive.Init(initCtx)
		initCancel()
		if err != nil {
			return err
		}
		a.log.Info("archive schema ready")
	}

	if err := a.manager.Start(ctx, time.Now()); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler, a.log,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	a.pipeline.Start(ctx)
	go func() {
		if err := a.collector.Start(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("collector error", applogger.Error(err))
		}
	}()
	a.log.Info("collector started",
		applogger.String("symbol", a.cfg.Symbol),
		applogger.String("feed", a.cfg.Feed.Source))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services. The collector is stopped first so
// no new cycle starts; the in-flight cycle commits before the feed closes.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}
	a.pipeline.Stop()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("audit sink close error", applogger.Error(err))
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Warn("archive close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
