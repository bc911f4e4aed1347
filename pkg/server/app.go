package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"AgriCast/internal/middleware"
	"AgriCast/pkg/config"
	xhttp "AgriCast/pkg/http"
	pkgkafka "AgriCast/pkg/kafka"
	applogger "AgriCast/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	reg         *prometheus.Registry
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	consumer    *pkgkafka.Consumer
	pipeline    *middleware.IngestPipeline
}

// New creates a new App instance with all dependencies.
// consumer and pipe are nil when price ingestion is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	pipe *middleware.IngestPipeline,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		l:           l,
		reg:         reg,
		httpHandler: handler,
		consumer:    consumer,
		pipeline:    pipe,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.IngestTopic))
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithLogger(a.l),
		xhttp.WithMetrics(metricsPath, a.reg, a.reg),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
	)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("agricast api listening", applogger.Int("port", a.cfg.Server.Port))

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	a.l.Info("shutdown complete")
	return firstErr
}
