package dispense

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/gpio"
	"github.com/sweeney/vendo/internal/ledger"
)

// Config describes one dispensing mechanism.
type Config struct {
	ID          string
	Name        string
	Aliases     []string
	ActuatorPin int
	SensorPin   int
	Cost        decimal.Decimal

	// Timeout bounds the wait for the sensor. Settle keeps the actuator
	// running briefly after the object is seen. Poll is the sensor read
	// interval while waiting.
	Timeout time.Duration
	Settle  time.Duration
	Poll    time.Duration
}

// Deps are the shared collaborators a Channel operates on.
type Deps struct {
	Board  gpio.Board
	Credit *ledger.Ledger
	Stock  *ledger.Inventory
	Log    *zap.Logger

	// Now and Ticker default to the wall clock.
	Now    func() time.Time
	Ticker TickerFunc

	// OnActivate, if set, runs after the actuator is asserted.
	OnActivate func(Attempt)
}

// Channel drives one mechanism through the dispense cycle. At most one
// attempt runs at a time; concurrent triggers are rejected with ErrBusy.
type Channel struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu   sync.Mutex
	seq  *Sequencer
	gen  uint64
	stop chan uint64
}

// NewChannel creates an idle channel.
func NewChannel(cfg Config, deps Deps) *Channel {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Ticker == nil {
		deps.Ticker = RealTicker
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 20 * time.Millisecond
	}
	return &Channel{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With(zap.String("channel", cfg.ID)),
		seq:  NewSequencer(cfg.Timeout, cfg.Settle),
		stop: make(chan uint64, 1),
	}
}

// ID returns the channel identifier.
func (c *Channel) ID() string { return c.cfg.ID }

// Config returns the channel configuration.
func (c *Channel) Config() Config { return c.cfg }

// SensorPin returns the confirmation sensor's pin.
func (c *Channel) SensorPin() int { return c.cfg.SensorPin }

// State returns the current sequencer state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.State()
}

// Active reports whether the actuator is running and no object has been
// seen yet.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Active()
}

// Stop asks the running attempt to release the actuator immediately. The
// signal is tagged with the attempt it was raised for, so it is only queued
// while the actuator is active and a later attempt never consumes it. It
// reports whether the signal was queued.
func (c *Channel) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seq.Active() {
		return false
	}
	select {
	case c.stop <- c.gen:
		return true
	default:
		return false
	}
}

// Off deasserts the actuator unconditionally.
func (c *Channel) Off() error {
	return c.deps.Board.Write(c.cfg.ActuatorPin, false)
}

// Dispense runs one full attempt and blocks until the channel is idle again.
//
// Rejections (busy, blocked, out of stock, insufficient credit, hardware)
// leave credit and stock untouched. A confirmed attempt consumes both. A
// timed-out or cancelled attempt refunds the credit and restores the stock.
func (c *Channel) Dispense(ctx context.Context) (Attempt, error) {
	a := Attempt{
		ID:      uuid.NewString(),
		Channel: c.cfg.ID,
		Cost:    c.cfg.Cost,
		Start:   c.deps.Now(),
		Outcome: OutcomePending,
	}

	c.mu.Lock()
	if err := c.seq.Begin(); err != nil {
		c.mu.Unlock()
		a.Outcome = OutcomeAborted
		a.End = a.Start
		return a, fmt.Errorf("dispense %s: %w", c.cfg.ID, err)
	}
	c.gen++
	gen := c.gen
	// Discard a cutoff signal left over from a previous attempt.
	select {
	case <-c.stop:
	default:
	}
	c.mu.Unlock()

	taken, err := c.reserve()
	if err != nil {
		c.mu.Lock()
		c.seq.Abort()
		c.mu.Unlock()
		a.Outcome = OutcomeAborted
		a.End = c.deps.Now()
		return a, fmt.Errorf("dispense %s: %w", c.cfg.ID, err)
	}

	if err := c.deps.Board.Write(c.cfg.ActuatorPin, true); err != nil {
		c.release()
		c.refund(taken)
		c.mu.Lock()
		c.seq.Abort()
		c.mu.Unlock()
		a.Outcome = OutcomeAborted
		a.End = c.deps.Now()
		return a, fmt.Errorf("dispense %s: %w: %v", c.cfg.ID, ErrHardware, err)
	}

	a.Start = c.deps.Now()
	c.mu.Lock()
	c.seq.Activate(a.Start)
	c.mu.Unlock()
	c.log.Info("actuator on", zap.String("attempt", a.ID))

	if c.deps.OnActivate != nil {
		c.deps.OnActivate(a)
	}

	c.mu.Lock()
	c.seq.Await()
	c.mu.Unlock()

	return c.await(ctx, a, gen, taken)
}

// reserve runs the pre-checks and takes credit and stock.
func (c *Channel) reserve() (ledger.Taken, error) {
	present, err := c.deps.Board.Read(c.cfg.SensorPin)
	if err != nil {
		return ledger.Taken{}, fmt.Errorf("%w: sensor read: %v", ErrChannelBlocked, err)
	}
	if present {
		return ledger.Taken{}, ErrChannelBlocked
	}

	n, ok := c.deps.Stock.Get(c.cfg.ID)
	if !ok {
		return ledger.Taken{}, ErrUnknownChannel
	}
	if n <= 0 {
		return ledger.Taken{}, ErrOutOfStock
	}

	if !c.deps.Credit.TryReserve(c.cfg.Cost) {
		return ledger.Taken{}, ErrInsufficientCredit
	}
	taken, ok := c.deps.Stock.Take(c.cfg.ID)
	if !ok {
		c.deps.Credit.Refund(c.cfg.Cost)
		return ledger.Taken{}, ErrOutOfStock
	}
	return taken, nil
}

func (c *Channel) await(ctx context.Context, a Attempt, gen uint64, taken ledger.Taken) (Attempt, error) {
	tick, stopTicker := c.deps.Ticker(c.cfg.Poll)
	defer stopTicker()

	for {
		var step Step
		select {
		case <-ctx.Done():
			c.release()
			c.refund(taken)
			c.finish(func(s *Sequencer) { s.Cancel() })
			a.Outcome = OutcomeAborted
			a.End = c.deps.Now()
			c.log.Warn("dispense cancelled, refunded", zap.String("attempt", a.ID))
			return a, fmt.Errorf("dispense %s: %w: %v", c.cfg.ID, ErrCancelled, ctx.Err())

		case g := <-c.stop:
			if g != gen {
				c.log.Debug("stale cutoff ignored", zap.String("attempt", a.ID))
				continue
			}
			c.mu.Lock()
			step = c.seq.ForceStop(c.deps.Now())
			c.mu.Unlock()
			a.Forced = step == StepRelease

		case <-tick:
			present, err := c.deps.Board.Read(c.cfg.SensorPin)
			if err != nil {
				c.log.Warn("sensor read failed", zap.Error(err))
				present = false
			}
			c.mu.Lock()
			step = c.seq.Observe(c.deps.Now(), present)
			c.mu.Unlock()
		}

		switch step {
		case StepRelease:
			c.release()
			c.finish(nil)
			a.Outcome = OutcomeConfirmed
			a.End = c.deps.Now()
			c.log.Info("dispense confirmed",
				zap.String("attempt", a.ID),
				zap.Duration("elapsed", a.End.Sub(a.Start)),
				zap.Bool("forced", a.Forced),
			)
			return a, nil

		case StepTimeout:
			c.release()
			c.refund(taken)
			c.finish(nil)
			a.Outcome = OutcomeTimedOut
			a.End = c.deps.Now()
			c.log.Warn("dispense timed out, refunded", zap.String("attempt", a.ID))
			return a, fmt.Errorf("dispense %s: %w after %s", c.cfg.ID, ErrTimeout, c.cfg.Timeout)
		}
	}
}

// release deasserts the actuator. A failure here is logged loudly; the
// shutdown path deasserts every output again.
func (c *Channel) release() {
	if err := c.Off(); err != nil {
		c.log.Error("actuator release failed", zap.Error(err))
	}
}

func (c *Channel) refund(taken ledger.Taken) {
	c.deps.Credit.Refund(c.cfg.Cost)
	if !c.deps.Stock.Restore(taken) {
		c.log.Info("stock was reset during the attempt, not restoring")
	}
}

func (c *Channel) finish(before func(*Sequencer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if before != nil {
		before(c.seq)
	}
	c.seq.Finish()
}
