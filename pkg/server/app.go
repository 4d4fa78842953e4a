package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	xhttp "Confluence/pkg/http"
	applogger "Confluence/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Service is a component with an explicit start/stop lifecycle, such as the
// job queue or the Kafka consumer.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Task is a long-running loop that returns when ctx ends.
type Task func(ctx context.Context) error

type namedService struct {
	name string
	svc  Service
}

type namedTask struct {
	name string
	run  Task
}

type namedCloser struct {
	name  string
	close func() error
}

// App encapsulates the application lifecycle: HTTP server, services,
// background tasks and the resources to release on shutdown.
type App struct {
	log             *applogger.Logger
	http            *xhttp.Server
	services        []namedService
	tasks           []namedTask
	closers         []namedCloser
	shutdownTimeout time.Duration
}

type Option func(*App)

func WithHTTPServer(s *xhttp.Server) Option {
	return func(a *App) { a.http = s }
}

func WithService(name string, s Service) Option {
	return func(a *App) {
		if s != nil {
			a.services = append(a.services, namedService{name, s})
		}
	}
}

func WithTask(name string, t Task) Option {
	return func(a *App) {
		if t != nil {
			a.tasks = append(a.tasks, namedTask{name, t})
		}
	}
}

// WithCloser registers a resource closed after everything else has stopped,
// in reverse registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, namedCloser{name, fn})
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

func New(opts ...Option) *App {
	a := &App{log: applogger.Nop(), shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts everything and blocks until ctx is cancelled or a task fails,
// then shuts down.
func (a *App) Run(ctx context.Context) error {
	started := make([]namedService, 0, len(a.services))
	for _, s := range a.services {
		if err := s.svc.Start(ctx); err != nil {
			a.log.Error("service start failed", applogger.String("service", s.name), applogger.Error(err))
			a.shutdown(started)
			return fmt.Errorf("start %s: %w", s.name, err)
		}
		a.log.Info("service started", applogger.String("service", s.name))
		started = append(started, s)
	}

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.shutdown(started)
			return fmt.Errorf("start http: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range a.tasks {
		g.Go(func() error {
			a.log.Info("task started", applogger.String("task", t.name))
			if err := t.run(gctx); err != nil && !stopped(ctx, err) {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}
	<-gctx.Done()
	a.log.Info("shutdown signal received")

	taskErr := g.Wait()
	if taskErr != nil {
		a.log.Error("task failed", applogger.Error(taskErr))
	}
	a.shutdown(started)
	return taskErr
}

func (a *App) shutdown(started []namedService) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].svc.Stop(ctx); err != nil {
			a.log.Warn("service stop error", applogger.String("service", started[i].name), applogger.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", a.closers[i].name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}

// stopped reports whether err is a task unwinding because Run was told to
// stop, either by cancellation or by the parent deadline.
func stopped(parent context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return parent.Err() != nil && errors.Is(err, parent.Err())
}
