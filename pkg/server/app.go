package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"comove/internal/handler/ws"
	"comove/internal/middleware"
	"comove/internal/service/ratelimit"
	"comove/internal/usecase"
	"comove/pkg/config"
	xhttp "comove/pkg/http"
	httpmw "comove/pkg/http/middleware"
	pkgkafka "comove/pkg/kafka"
	applogger "comove/pkg/logger"
	"comove/pkg/queue"
	"comove/pkg/tracing"
)

// Components are the optional parts assembled by DI. Nil members are
// skipped.
type Components struct {
	Handlers      []xhttp.Handler
	Hub           *ws.Hub
	Limiter       *ratelimit.Limiter
	Consumer      *pkgkafka.Consumer
	KafkaHandlers []pkgkafka.MessageHandler
	Queue         *queue.RedisQueue
	QueueJobs     []queue.Job
	Pipeline      *middleware.ReportPipeline
	Schedule      *usecase.ScheduledAnalysis
	Tracing       tracing.Shutdown
	Checks        map[string]xhttp.CheckFunc
	// FlushLogs ships collected logs while the producer is still open.
	FlushLogs     func()
	// Closers release infrastructure clients, last to first.
	Closers       []func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve starts every component and blocks until ctx is done, then shuts
// down gracefully.
func (a *App) Serve(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		_ = a.shutdown()
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
	}

	handlers := append([]xhttp.Handler(nil), a.c.Handlers...)
	if a.c.Hub != nil {
		handlers = append(handlers, a.c.Hub)
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	var mw []echo.MiddlewareFunc
	if a.c.Limiter != nil {
		mw = append(mw, httpmw.RateLimit(a.c.Limiter, "/healthz", "/readyz", metricsPath, ws.Path))
		go a.sweep(ctx)
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(a.cfg.CORSEnabled()),
		xhttp.WithMiddleware(mw...),
	}
	for name, check := range a.c.Checks {
		opts = append(opts, xhttp.WithCheck(name, check))
	}
	a.httpServer = xhttp.NewServer(a.log, handlers, opts...)

	if a.c.Queue != nil {
		a.c.Queue.RegisterJobs(a.c.QueueJobs...)
		if err := a.c.Queue.Start(); err != nil {
			a.log.Error("queue start error", applogger.Error(err))
			return err
		}
	}

	if a.c.Consumer != nil && len(a.c.KafkaHandlers) > 0 {
		topics := make([]string, 0, len(a.c.KafkaHandlers))
		for _, h := range a.c.KafkaHandlers {
			a.c.Consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		a.c.Consumer.WithConsumerHook(pkgkafka.TraceHook())
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.Strings("topics", topics))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	if a.c.Schedule != nil {
		a.c.Schedule.Start(ctx)
	}
	return nil
}

func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.c.Limiter.Sweep(); n > 0 {
				a.log.Debug("rate limiter swept", applogger.Int("clients", n))
			}
		}
	}
}

// shutdown stops intake first, then drains workers, then closes clients.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}
	if a.c.FlushLogs != nil {
		a.c.FlushLogs()
	}
	// Closing the pipeline closes the report producer.
	if a.c.Pipeline != nil {
		if err := a.c.Pipeline.Close(); err != nil {
			a.log.Warn("report publisher close error", applogger.Error(err))
		}
	}
	if a.c.Tracing != nil {
		if err := a.c.Tracing(ctx); err != nil {
			a.log.Warn("tracing shutdown error", applogger.Error(err))
		}
	}
	for i := len(a.c.Closers) - 1; i >= 0; i-- {
		if err := a.c.Closers[i](); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
