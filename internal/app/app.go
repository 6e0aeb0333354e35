// Package app supervises the controller's long-running loops. When any
// service returns, every other service's context is cancelled and Run
// waits for all of them.
package app

import (
	"context"

	"github.com/oklog/run"
)

// App is an ordered set of services sharing one lifetime.
type App struct {
	services []Service
}

// NewApp returns an App with no services.
func NewApp() *App { return &App{} }

// WithService adds s and returns the App for chaining.
func (a *App) WithService(s Service) *App {
	a.services = append(a.services, s)
	return a
}

// Run starts every service under ctx and blocks until all have returned.
// The error is the one from the service that returned first.
func (a *App) Run(ctx context.Context) error {
	var g run.Group
	for _, s := range a.services {
		g.Add(actor(ctx, s))
	}
	return g.Run()
}

// actor binds s to a run.Group member whose interrupt cancels s's context
// with the group's cause.
func actor(ctx context.Context, s Service) (execute func() error, interrupt func(error)) {
	ctx, cancel := context.WithCancelCause(ctx)
	return func() error { return s.Run(ctx) }, cancel
}
