package app

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsAllWhenOneReturns(t *testing.T) {
	boom := errors.New("boom")
	stopped := make(chan struct{})

	err := NewApp().
		WithService(ServiceFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		})).
		WithService(ServiceFunc(func(ctx context.Context) error { return boom })).
		Run(context.Background())

	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	default:
		t.Fatal("blocking service was not interrupted")
	}
}

func TestUntil(t *testing.T) {
	done := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		result <- NewApp().
			WithService(Until(done)).
			WithService(ServiceFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			})).
			Run(context.Background())
	}()

	close(done)
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestTicked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	err := Ticked(time.Millisecond, func(ctx context.Context, tick <-chan time.Time) error {
		for ticks < 3 {
			<-tick
			ticks++
		}
		cancel()
		return ctx.Err()
	}).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, ticks)
}

func TestInterrupter(t *testing.T) {
	var got string
	i := NewInterrupter(func(name string) { got = name })
	i.sig <- syscall.SIGTERM
	require.NoError(t, i.wait(context.Background()))
	assert.Equal(t, "SIGTERM", got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got = ""
	require.NoError(t, i.wait(ctx))
	assert.Empty(t, got)
}
