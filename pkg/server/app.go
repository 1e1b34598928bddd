package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	applogger "FinAgent/pkg/logger"
)

// Component is a long running part of the process. The HTTP server, the
// Redis queue consumer, the Kafka consumer and the live runner all fit.
type Component interface {
	Start() error
	Stop(ctx context.Context) error
}

// App owns the lifecycle of the components of one run mode.
type App struct {
	name            string
	l               *applogger.Logger
	components      []Component
	closers         []func()
	shutdownTimeout time.Duration
}

type Option func(*App)

// WithCloser registers cleanup that runs after every component stopped.
// Closers run in reverse registration order.
func WithCloser(fn func()) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, fn)
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

// New creates an App. Nil components are skipped.
func New(name string, l *applogger.Logger, components []Component, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{name: name, l: l, shutdownTimeout: 15 * time.Second}
	for _, c := range components {
		if c != nil {
			a.components = append(a.components, c)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Name() string { return a.name }

// Run starts every component and blocks until SIGINT, SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := 0
	var startErr error
	for _, c := range a.components {
		if err := c.Start(); err != nil {
			startErr = err
			a.l.Error("component start failed", applogger.String("app", a.name), applogger.Error(err))
			break
		}
		started++
	}

	if startErr == nil {
		a.l.Info("app started", applogger.String("app", a.name), applogger.Int("components", started))
		<-ctx.Done()
		a.l.Info("shutdown signal received", applogger.String("app", a.name))
	}

	return errors.Join(startErr, a.shutdown(started))
}

// shutdown stops the first n components in reverse order, then runs closers.
func (a *App) shutdown(n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := n - 1; i >= 0; i-- {
		if err := a.components[i].Stop(ctx); err != nil {
			a.l.Warn("component stop error", applogger.String("app", a.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.l.Info("shutdown complete", applogger.String("app", a.name))
	return errors.Join(errs...)
}
