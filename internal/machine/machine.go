// Package machine ties the controller together: it owns the dispensing
// channels and routes every operator trigger (button, console, HTTP,
// remote flag) through the same credit and stock rules.
package machine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/coin"
	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/display"
	"github.com/sweeney/vendo/internal/gpio"
	"github.com/sweeney/vendo/internal/ledger"
	"github.com/sweeney/vendo/internal/status"
)

// ChannelSpec is one channel plus its front-panel button.
type ChannelSpec struct {
	dispense.Config

	// ButtonPin is the trigger button; negative means none.
	ButtonPin int
}

// Config describes the machine.
type Config struct {
	Channels []ChannelSpec

	// CoinChannel names the coin line simulated coins are injected on.
	CoinChannel string

	// ReadyLEDPin lights while credit covers an in-stock channel;
	// negative means none.
	ReadyLEDPin int

	ButtonDebounce time.Duration

	// MessageHold is how long a result message stays before the idle
	// screen returns.
	MessageHold time.Duration
}

// Recorder persists coin and sale events.
type Recorder interface {
	RecordCoin(ev coin.Event) error
	RecordAttempt(a dispense.Attempt) error
}

// Remote receives change notifications and sale records.
type Remote interface {
	Notify()
	PublishSale(payload []byte)
}

// CoinInjector feeds simulated pulse counts into coin resolution.
type CoinInjector interface {
	Inject(channel string, n int) bool
}

// Deps are the machine's collaborators. Journal is optional; without Coins
// simulated coins are refused.
type Deps struct {
	Board   gpio.Board
	Coins   *coin.Table
	Credit  *ledger.Ledger
	Stock   *ledger.Inventory
	Display *display.Serialized
	Tracker *status.Tracker
	Journal Recorder
	Log     *zap.Logger

	Now    func() time.Time
	Ticker dispense.TickerFunc
}

// Machine is the vending controller.
type Machine struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	channels []*dispense.Channel
	byID     map[string]*dispense.Channel
	aliases  map[string]string

	remote   Remote
	injector CoinInjector

	life     context.Context
	kill     context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	reasonMu sync.Mutex
	reason   string

	pending sync.WaitGroup

	screenMu  sync.Mutex
	holdUntil time.Time
	idleShown bool

	readyMu sync.Mutex
	ready   *bool
}

// New builds a machine. Channel IDs and aliases must be unique and every
// channel must have an inventory entry.
func New(cfg Config, deps Deps) (*Machine, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	life, kill := context.WithCancel(context.Background())
	m := &Machine{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Log,
		byID:    make(map[string]*dispense.Channel),
		aliases: make(map[string]string),
		life:    life,
		kill:    kill,
		done:    make(chan struct{}),
	}

	for _, spec := range cfg.Channels {
		id := strings.ToLower(spec.ID)
		if _, dup := m.byID[id]; dup {
			kill()
			return nil, fmt.Errorf("duplicate channel %q", spec.ID)
		}
		if _, clash := m.aliases[id]; clash {
			kill()
			return nil, fmt.Errorf("channel %q clashes with an alias", spec.ID)
		}
		if _, ok := deps.Stock.Get(spec.ID); !ok {
			kill()
			return nil, fmt.Errorf("channel %q has no inventory", spec.ID)
		}

		ch := dispense.NewChannel(spec.Config, dispense.Deps{
			Board:      deps.Board,
			Credit:     deps.Credit,
			Stock:      deps.Stock,
			Log:        deps.Log.Named("dispense"),
			Now:        deps.Now,
			Ticker:     deps.Ticker,
			OnActivate: m.onActivate,
		})
		m.channels = append(m.channels, ch)
		m.byID[id] = ch

		for _, alias := range spec.Aliases {
			a := strings.ToLower(alias)
			if _, clash := m.byID[a]; clash {
				kill()
				return nil, fmt.Errorf("alias %q clashes with a channel", alias)
			}
			if _, dup := m.aliases[a]; dup {
				kill()
				return nil, fmt.Errorf("duplicate alias %q", alias)
			}
			m.aliases[a] = id
		}
	}
	return m, nil
}

// AttachRemote sets the remote sync notifier. Call before starting loops.
func (m *Machine) AttachRemote(r Remote) { m.remote = r }

// AttachCoinInjector sets the target for simulated coins. Call before
// starting loops.
func (m *Machine) AttachCoinInjector(in CoinInjector) { m.injector = in }

// Channels returns the channels in configuration order.
func (m *Machine) Channels() []*dispense.Channel {
	return append([]*dispense.Channel(nil), m.channels...)
}

// Channel resolves a channel ID or alias, case-insensitively.
func (m *Machine) Channel(name string) (*dispense.Channel, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if id, ok := m.aliases[name]; ok {
		name = id
	}
	ch, ok := m.byID[name]
	return ch, ok
}

// HandleCoin applies a resolved coin. Unrecognised coins add nothing.
func (m *Machine) HandleCoin(ev coin.Event) {
	if m.deps.Journal != nil {
		if err := m.deps.Journal.RecordCoin(ev); err != nil {
			m.log.Warn("journal coin failed", zap.Error(err))
		}
	}
	m.deps.Tracker.RecordCoin(ev.Recognized, ev.Value())

	if !ev.Recognized {
		m.message("Coin rejected", fmt.Sprintf("%d pulses", ev.Pulses))
		m.changed()
		return
	}

	balance := m.deps.Credit.Add(ev.Value())
	m.log.Info("coin accepted",
		zap.String("coin", ev.Denomination.Name),
		zap.String("value", ev.Value().String()),
		zap.String("credit", balance.String()),
	)
	m.ShowIdle()
	m.changed()
}

// AddCredit adds operator or remote credit. Non-positive amounts are ignored.
func (m *Machine) AddCredit(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	balance := m.deps.Credit.Add(amount)
	m.log.Info("credit added", zap.String("amount", amount.String()), zap.String("credit", balance.String()))
	m.ShowIdle()
	m.changed()
}

// Dispense runs one attempt on the named channel. It is aborted, with a
// refund, if the machine shuts down while it runs.
func (m *Machine) Dispense(ctx context.Context, name string) (dispense.Attempt, error) {
	ch, ok := m.Channel(name)
	if !ok {
		m.deps.Tracker.RecordRejected()
		m.message("Unknown item", name)
		return dispense.Attempt{Channel: name, Outcome: dispense.OutcomeAborted},
			fmt.Errorf("dispense %s: %w", name, dispense.ErrUnknownChannel)
	}

	select {
	case <-m.done:
		return dispense.Attempt{Channel: ch.ID(), Outcome: dispense.OutcomeAborted},
			fmt.Errorf("dispense %s: shutting down: %w", ch.ID(), dispense.ErrCancelled)
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.life, cancel)
	defer stop()

	a, err := ch.Dispense(ctx)
	m.finish(ch, a, err)
	return a, err
}

func (m *Machine) onActivate(a dispense.Attempt) {
	name := a.Channel
	if ch, ok := m.Channel(a.Channel); ok && ch.Config().Name != "" {
		name = ch.Config().Name
	}
	m.message("Dispensing...", name)
	m.refresh()
}

// finish reports a finished or rejected attempt.
func (m *Machine) finish(ch *dispense.Channel, a dispense.Attempt, err error) {
	cfg := ch.Config()
	rejected := a.Outcome == dispense.OutcomeAborted && !errors.Is(err, dispense.ErrCancelled)

	if rejected {
		m.deps.Tracker.RecordRejected()
		m.showRejection(cfg, err)
		if errors.Is(err, dispense.ErrHardware) {
			m.log.Error("dispense failed", zap.String("channel", cfg.ID), zap.Error(err))
		} else {
			m.log.Warn("trigger rejected", zap.String("channel", cfg.ID), zap.Error(err))
		}
		m.refresh()
		return
	}

	if m.deps.Journal != nil {
		if jerr := m.deps.Journal.RecordAttempt(a); jerr != nil {
			m.log.Warn("journal attempt failed", zap.Error(jerr))
		}
	}
	m.deps.Tracker.RecordOutcome(cfg.ID, a.Outcome)

	switch a.Outcome {
	case dispense.OutcomeConfirmed:
		m.message("Thank you!", "")
	case dispense.OutcomeTimedOut:
		m.message("Error: Timeout", "Credit refunded")
	case dispense.OutcomeAborted:
		m.message("Cancelled", "Credit refunded")
	}

	if m.remote != nil {
		m.remote.PublishSale(FormatSale(a))
	}
	m.changed()
}

func (m *Machine) showRejection(cfg dispense.Config, err error) {
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	switch {
	case errors.Is(err, dispense.ErrInsufficientCredit):
		short := cfg.Cost.Sub(m.deps.Credit.Balance())
		m.message("Not enough credit", "Need "+short.String()+" more")
	case errors.Is(err, dispense.ErrOutOfStock):
		m.message("Out of stock", name)
	case errors.Is(err, dispense.ErrChannelBlocked):
		m.message("Channel blocked", name)
	case errors.Is(err, dispense.ErrBusy):
		m.message("Please wait", name)
	case errors.Is(err, dispense.ErrHardware):
		m.message("Error: Hardware", name)
	default:
		m.message("Error", name)
	}
}

// RequestShutdown starts a graceful shutdown. Only the first call counts.
func (m *Machine) RequestShutdown(reason string) {
	m.stopOnce.Do(func() {
		m.reasonMu.Lock()
		m.reason = reason
		m.reasonMu.Unlock()

		m.log.Info("shutdown requested", zap.String("reason", reason))
		m.deps.Tracker.SetShuttingDown()
		m.message("Shutting down", "")
		m.kill()
		close(m.done)
	})
}

// Done is closed once shutdown has been requested.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Reason returns why shutdown was requested.
func (m *Machine) Reason() string {
	m.reasonMu.Lock()
	defer m.reasonMu.Unlock()
	return m.reason
}

// Wait blocks until button-started dispenses have finished.
func (m *Machine) Wait() { m.pending.Wait() }

// AllOff deasserts every actuator and the ready LED.
func (m *Machine) AllOff() error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Off(); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.ID(), err))
		}
	}
	if m.cfg.ReadyLEDPin >= 0 {
		if err := m.deps.Board.Write(m.cfg.ReadyLEDPin, false); err != nil {
			errs = append(errs, fmt.Errorf("ready led: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start shows the splash screen and publishes the initial state.
func (m *Machine) Start() {
	m.message("Vending", "Machine Ready")
	m.changed()
}

// changed refreshes the status view and notifies the remote.
func (m *Machine) changed() {
	m.refresh()
	if m.remote != nil {
		m.remote.Notify()
	}
}

// refresh copies live state into the status tracker and updates the
// ready LED.
func (m *Machine) refresh() {
	m.deps.Tracker.SetCredit(m.deps.Credit.Balance())
	for _, ch := range m.channels {
		cfg := ch.Config()
		n, _ := m.deps.Stock.Get(cfg.ID)
		m.deps.Tracker.SetChannel(status.Channel{
			ID:    cfg.ID,
			Name:  cfg.Name,
			Cost:  cfg.Cost,
			Stock: n,
			State: string(ch.State()),
		})
	}
	m.updateReady()
}

// Ready reports whether credit covers at least one in-stock channel.
func (m *Machine) Ready() bool {
	for _, ch := range m.channels {
		cfg := ch.Config()
		if n, _ := m.deps.Stock.Get(cfg.ID); n > 0 && m.deps.Credit.Covers(cfg.Cost) {
			return true
		}
	}
	return false
}

func (m *Machine) updateReady() {
	if m.cfg.ReadyLEDPin < 0 {
		return
	}
	ready := m.Ready()

	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	if m.ready != nil && *m.ready == ready {
		return
	}
	if err := m.deps.Board.Write(m.cfg.ReadyLEDPin, ready); err != nil {
		m.log.Warn("ready led write failed", zap.Error(err))
		return
	}
	m.ready = &ready
}
