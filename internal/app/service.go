package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Service is a loop that runs until ctx is cancelled or it fails.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// Ticked runs loop with a ticker of the given interval.
func Ticked(interval time.Duration, loop func(ctx context.Context, tick <-chan time.Time) error) Service {
	return ServiceFunc(func(ctx context.Context) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		return loop(ctx, t.C)
	})
}

// Until returns when done is closed, stopping the whole group.
func Until(done <-chan struct{}) Service {
	return ServiceFunc(func(ctx context.Context) error {
		select {
		case <-done:
		case <-ctx.Done():
		}
		return nil
	})
}

// Interrupter returns on SIGINT or SIGTERM after passing the signal name
// to onSignal.
type Interrupter struct {
	sig      chan os.Signal
	onSignal func(name string)
}

func NewInterrupter(onSignal func(name string)) *Interrupter {
	return &Interrupter{sig: make(chan os.Signal, 1), onSignal: onSignal}
}

func (i *Interrupter) Run(ctx context.Context) error {
	signal.Notify(i.sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(i.sig)
	return i.wait(ctx)
}

func (i *Interrupter) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case s := <-i.sig:
		i.onSignal(signalName(s))
		return nil
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
