package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	xhttp "FxPulse/pkg/http"
	pkgkafka "FxPulse/pkg/kafka"
	"FxPulse/pkg/logger"
)

// Scheduler is the periodic driver the app starts and drains.
type Scheduler interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Background is a component that runs until its context is done.
type Background interface {
	Run(ctx context.Context)
}

// Worker is a component with an explicit start and a graceful stop.
type Worker interface {
	Start() error
	Stop(ctx context.Context) error
}

// Closer is a named resource released last during shutdown.
type Closer struct {
	Name string
	io.Closer
}

// Option configures App.
type Option func(*App)

// WithAutoStart starts the periodic scheduler on Run.
func WithAutoStart(enabled bool) Option {
	return func(a *App) { a.autoStart = enabled }
}

// WithBackground runs b for the lifetime of the app.
func WithBackground(b Background) Option {
	return func(a *App) {
		if b != nil {
			a.background = append(a.background, b)
		}
	}
}

// WithWorker starts w on Run and stops it on shutdown.
func WithWorker(name string, w Worker) Option {
	return func(a *App) {
		if w != nil {
			a.workers = append(a.workers, namedWorker{name: name, Worker: w})
		}
	}
}

// WithKafkaConsumer registers handlers on c and runs it as a worker.
func WithKafkaConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		if c == nil {
			return
		}
		for _, h := range handlers {
			c.RegisterHandler(h)
		}
		a.workers = append(a.workers, namedWorker{name: "kafka_consumer", Worker: c})
	}
}

// WithClosers releases resources after every component has stopped.
func WithClosers(closers ...Closer) Option {
	return func(a *App) {
		for _, c := range closers {
			if c.Closer != nil {
				a.closers = append(a.closers, c)
			}
		}
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// WithLogger sets the app logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

type namedWorker struct {
	name string
	Worker
}

// App owns the process lifecycle: it starts the HTTP server, workers and the
// scheduler, and tears them down in reverse order.
type App struct {
	scheduler       Scheduler
	http            *xhttp.Server
	autoStart       bool
	background      []Background
	workers         []namedWorker
	closers         []Closer
	shutdownTimeout time.Duration
	log             *logger.Logger
}

// New creates the app.
func New(scheduler Scheduler, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{
		scheduler:       scheduler,
		http:            httpServer,
		shutdownTimeout: 30 * time.Second,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(logger.String("component", "app"))
	return a
}

// Run starts everything and blocks until ctx is done or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, b := range a.background {
		go b.Run(runCtx)
	}

	started := make([]namedWorker, 0, len(a.workers))
	for _, w := range a.workers {
		if err := w.Start(); err != nil {
			a.log.Error("worker start", logger.String("worker", w.name), logger.Error(err))
			a.workers = started
			_ = a.shutdown()
			return fmt.Errorf("start %s: %w", w.name, err)
		}
		started = append(started, w)
		a.log.Info("worker started", logger.String("worker", w.name))
	}

	var httpErrs <-chan error
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			_ = a.shutdown()
			return err
		}
		httpErrs = a.http.Errors()
	}

	if a.autoStart {
		if err := a.scheduler.Start(runCtx); err != nil {
			a.log.Error("scheduler start", logger.Error(err))
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-httpErrs:
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()

	return errors.Join(runErr, a.shutdown())
}

// shutdown drains the scheduler first so in-flight units can still deliver,
// then stops intake and releases resources.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(ctx); err != nil {
			a.log.Warn("scheduler shutdown", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Warn("http shutdown", logger.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.workers) - 1; i >= 0; i-- {
		w := a.workers[i]
		if err := w.Stop(ctx); err != nil {
			a.log.Warn("worker stop", logger.String("worker", w.name), logger.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.log.Warn("close", logger.String("resource", c.Name), logger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
