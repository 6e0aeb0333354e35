package coin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/pulse"
)

type injection struct {
	channel string
	pulses  int
}

// Resolver is the single owner of a Coalescer. Pulses arrive on a channel,
// a tick drives timeout resolution, and every resolved burst is handed to
// the handler on the resolver's goroutine.
type Resolver struct {
	coalescer *Coalescer
	pulses    <-chan pulse.Event
	inject    chan injection
	handle    func(Event)
	now       func() time.Time
	log       *zap.Logger
}

// NewResolver creates a Resolver reading pulses from in.
func NewResolver(c *Coalescer, in <-chan pulse.Event, handle func(Event), now func() time.Time, log *zap.Logger) *Resolver {
	return &Resolver{
		coalescer: c,
		pulses:    in,
		inject:    make(chan injection, 8),
		handle:    handle,
		now:       now,
		log:       log,
	}
}

// Inject queues n pulses on channel as one simulated coin. It does not block;
// it reports false if the queue is full.
func (r *Resolver) Inject(channel string, n int) bool {
	select {
	case r.inject <- injection{channel: channel, pulses: n}:
		return true
	default:
		return false
	}
}

// Run processes pulses until ctx is cancelled. A burst still open at
// shutdown is discarded, never credited.
func (r *Resolver) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			for _, b := range r.coalescer.Discard() {
				r.log.Warn("discarding open coin burst at shutdown",
					zap.String("channel", b.Channel), zap.Int("pulses", b.Count))
			}
			return nil
		case ev := <-r.pulses:
			r.dispatch(r.coalescer.Pulse(ev))
		case in := <-r.inject:
			r.dispatch(r.coalescer.Inject(in.channel, in.pulses, r.now()))
		case <-tick:
			r.dispatch(r.coalescer.Expire(r.now()))
		}
	}
}

func (r *Resolver) dispatch(events []Event) {
	for _, ev := range events {
		if ev.Recognized {
			r.log.Info("coin recognised",
				zap.String("coin", ev.Denomination.Name),
				zap.Int("pulses", ev.Pulses),
				zap.String("value", ev.Denomination.Value.String()))
		} else {
			r.log.Warn("unrecognised coin pulse pattern", zap.Int("pulses", ev.Pulses))
		}
		r.handle(ev)
	}
}
