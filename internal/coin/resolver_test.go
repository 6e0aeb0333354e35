package coin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/vendo/internal/pulse"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestResolverBurstThenTimeout(t *testing.T) {
	table, err := NewTable(0, pesos()...)
	require.NoError(t, err)

	clock := &manualClock{now: t0}
	in := make(chan pulse.Event)
	tick := make(chan time.Time)
	rec := &recorder{}
	r := NewResolver(NewCoalescer(table, gap), in, rec.handle, clock.Now, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, tick) }()

	in <- pulse.Event{Channel: "coin", Time: t0}
	clock.Set(t0.Add(300 * time.Millisecond))
	tick <- time.Time{}
	assert.Empty(t, rec.all(), "gap not exceeded")

	clock.Set(t0.Add(600 * time.Millisecond))
	tick <- time.Time{}
	tick <- time.Time{} // second tick proves the first was fully handled

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "1 peso", events[0].Denomination.Name)

	cancel()
	require.NoError(t, <-done)
}

func TestResolverInject(t *testing.T) {
	table, err := NewTable(0, pesos()...)
	require.NoError(t, err)

	clock := &manualClock{now: t0}
	tick := make(chan time.Time)
	rec := &recorder{}
	r := NewResolver(NewCoalescer(table, gap), make(chan pulse.Event), rec.handle, clock.Now, zap.NewNop())

	require.True(t, r.Inject("coin", 5))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, tick) }()

	require.Eventually(t, func() bool {
		// The injection may be handled after a tick; keep time moving.
		clock.Set(clock.Now().Add(2 * gap))
		select {
		case tick <- time.Time{}:
		default:
		}
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "5 peso", rec.all()[0].Denomination.Name)
	cancel()
	<-done
}

func TestResolverDiscardsOpenBurstOnShutdown(t *testing.T) {
	table, err := NewTable(0, pesos()...)
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	in := make(chan pulse.Event)
	rec := &recorder{}
	r := NewResolver(NewCoalescer(table, gap), in, rec.handle, func() time.Time { return t0 }, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, make(chan time.Time)) }()

	in <- pulse.Event{Channel: "coin", Time: t0}
	in <- pulse.Event{Channel: "coin", Time: t0.Add(100 * time.Millisecond)}
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, rec.all(), "open burst must not be credited")
	assert.Equal(t, 1, logs.FilterMessage("discarding open coin burst at shutdown").Len())
}
