package pulse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/gpio"
)

// Event is one debounced pulse on a coin line.
type Event struct {
	Time    time.Time
	Channel string
}

// Sampler watches a coin line and emits debounced pulse events.
//
// It runs in one of two modes: polling the line on every tick (Run), or
// consuming edges delivered by an interrupt-style watcher (RunEdges). In edge
// mode the watcher callback only enqueues; all state stays on the sampler's
// goroutine.
type Sampler struct {
	channel string
	pin     int
	reader  gpio.Reader
	window  time.Duration
	now     func() time.Time
	out     chan<- Event
	log     *zap.Logger

	deb      *Debouncer
	edges    chan time.Time
	lastEdge time.Time
}

// NewSampler creates a sampler for one coin line. Events are sent on out.
func NewSampler(channel string, pin int, reader gpio.Reader, window time.Duration, now func() time.Time, out chan<- Event, log *zap.Logger) *Sampler {
	return &Sampler{
		channel: channel,
		pin:     pin,
		reader:  reader,
		window:  window,
		now:     now,
		out:     out,
		log:     log,
		deb:     NewDebouncer(window),
		edges:   make(chan time.Time, 64),
	}
}

// Run polls the line on every tick until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			level, err := s.reader.Read(s.pin)
			if err != nil {
				s.log.Warn("coin line read failed", zap.Int("pin", s.pin), zap.Error(err))
				continue
			}
			if at, ok := s.deb.Sample(level, s.now()); ok {
				s.emit(ctx, at)
			}
		}
	}
}

// OnEdge is the watcher callback. It never blocks; if the queue is full the
// edge is dropped and logged.
func (s *Sampler) OnEdge(t time.Time) {
	select {
	case s.edges <- t:
	default:
		s.log.Warn("coin edge queue full, dropping edge", zap.Time("at", t))
	}
}

// RunEdges consumes edges queued by OnEdge until ctx is cancelled.
// Edges closer together than the debounce window are bounces of the same
// pulse and are dropped.
func (s *Sampler) RunEdges(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-s.edges:
			if !s.lastEdge.IsZero() && t.Sub(s.lastEdge) < s.window {
				s.log.Debug("coin edge bounce ignored", zap.Duration("since_last", t.Sub(s.lastEdge)))
				continue
			}
			s.lastEdge = t
			s.emit(ctx, t)
		}
	}
}

func (s *Sampler) emit(ctx context.Context, at time.Time) {
	s.log.Debug("coin pulse", zap.String("channel", s.channel), zap.Time("at", at))
	select {
	case s.out <- Event{Time: at, Channel: s.channel}:
	case <-ctx.Done():
	}
}
