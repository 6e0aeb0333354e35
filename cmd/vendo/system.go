package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/app"
	"github.com/sweeney/vendo/internal/coin"
	"github.com/sweeney/vendo/internal/command"
	"github.com/sweeney/vendo/internal/config"
	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/display"
	"github.com/sweeney/vendo/internal/gpio"
	"github.com/sweeney/vendo/internal/journal"
	"github.com/sweeney/vendo/internal/ledger"
	"github.com/sweeney/vendo/internal/machine"
	"github.com/sweeney/vendo/internal/pulse"
	"github.com/sweeney/vendo/internal/remote"
	"github.com/sweeney/vendo/internal/status"
	"github.com/sweeney/vendo/internal/web"
)

const (
	coinChannel     = "coin"
	expireInterval  = 50 * time.Millisecond
	displayInterval = 250 * time.Millisecond
	httpStopTimeout = 5 * time.Second
)

// system is the wired controller: every component built from the config
// and sharing one board, ledger and inventory.
type system struct {
	cfg *config.Config
	log *zap.Logger
	now func() time.Time

	board   gpio.Board
	store   remote.Store
	journal *journal.Journal
	screen  display.Display
	tracker *status.Tracker

	machine  *machine.Machine
	sampler  *pulse.Sampler
	resolver *coin.Resolver
	monitor  *dispense.Monitor
	syncer   *remote.Syncer
	web      *web.Server
}

// newSystem builds the controller. store may be nil when remote sync is
// disabled. On error nothing opened here is left open; the caller still
// owns board and store.
func newSystem(cfg *config.Config, board gpio.Board, store remote.Store, log *zap.Logger, now func() time.Time) (*system, error) {
	s := &system{cfg: cfg, log: log, now: now, board: board, store: store}

	table, err := cfg.CoinTable()
	if err != nil {
		return nil, err
	}

	s.tracker = status.NewTracker(now(), status.Config{
		Broker:            cfg.Remote.Broker,
		HTTPAddr:          cfg.HTTP.Addr,
		CoinTolerance:     table.Tolerance(),
		BurstGapMs:        cfg.Coin.BurstGap.Milliseconds(),
		DispenseTimeoutMs: cfg.Dispense.Timeout.Milliseconds(),
		SettleMs:          cfg.Dispense.Settle.Milliseconds(),
	})

	var recorder machine.Recorder
	if cfg.Journal.Enabled {
		s.journal, err = journal.Open(cfg.Journal.Path, log.Named("journal"))
		if err != nil {
			return nil, err
		}
		recorder = s.journal
		totals, err := s.journal.Totals()
		if err != nil {
			s.journal.Close()
			return nil, err
		}
		s.tracker.SetMoneyCollected(totals.MoneyCollected)
	}

	switch cfg.Display.Kind {
	case "serial":
		lcd, err := display.OpenSerialLCD(cfg.Display.Port, cfg.Display.Baud)
		if err != nil {
			s.closeOwned()
			return nil, err
		}
		s.screen = lcd
	default:
		s.screen = display.NewLogDisplay(log.Named("display"))
	}

	stock := make(map[string]int, len(cfg.Channels))
	specs := make([]machine.ChannelSpec, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		cost, err := ch.CostDecimal()
		if err != nil {
			s.closeOwned()
			return nil, fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		stock[ch.ID] = ch.Inventory
		specs = append(specs, machine.ChannelSpec{
			Config: dispense.Config{
				ID:          ch.ID,
				Name:        ch.Name,
				Aliases:     ch.Aliases,
				ActuatorPin: ch.ActuatorPin,
				SensorPin:   ch.SensorPin,
				Cost:        cost,
				Timeout:     cfg.Dispense.Timeout,
				Settle:      cfg.Dispense.Settle,
				Poll:        cfg.Dispense.Poll,
			},
			ButtonPin: ch.ButtonPin,
		})
	}

	s.machine, err = machine.New(machine.Config{
		Channels:       specs,
		CoinChannel:    coinChannel,
		ReadyLEDPin:    cfg.ReadyLEDPin,
		ButtonDebounce: cfg.Buttons.Debounce,
		MessageHold:    cfg.Display.MessageHold,
	}, machine.Deps{
		Board:   board,
		Coins:   table,
		Credit:  ledger.New(),
		Stock:   ledger.NewInventory(stock),
		Display: display.NewSerialized(s.screen, log.Named("display")),
		Tracker: s.tracker,
		Journal: recorder,
		Log:     log.Named("machine"),
		Now:     now,
	})
	if err != nil {
		s.closeOwned()
		return nil, err
	}

	pulses := make(chan pulse.Event, 64)
	s.sampler = pulse.NewSampler(coinChannel, cfg.Coin.Pin, board, cfg.Coin.Debounce, now, pulses, log.Named("pulse"))
	s.resolver = coin.NewResolver(coin.NewCoalescer(table, cfg.Coin.BurstGap), pulses, s.machine.HandleCoin, now, log.Named("coin"))
	s.machine.AttachCoinInjector(s.resolver)

	if cfg.Monitor.Enabled {
		s.monitor = dispense.NewMonitor(board, log.Named("monitor"), s.machine.Channels()...)
	}

	if store != nil {
		s.syncer = remote.NewSyncer(store, s.machine, log.Named("sync"))
		s.machine.AttachRemote(s.syncer)
	}

	if cfg.HTTP.Addr != "" {
		s.web = web.New(cfg.HTTP.Addr, s.tracker, s.machine, log.Named("web"))
		if s.journal != nil {
			s.web.WithSales(s.journal)
		}
	}
	return s, nil
}

// services returns the supervised loops. The group stops when shutdown is
// requested from any surface or a signal arrives.
func (s *system) services(in io.Reader, out io.Writer) (*app.App, error) {
	a := app.NewApp().
		WithService(app.Until(s.machine.Done())).
		WithService(app.NewInterrupter(s.machine.RequestShutdown)).
		WithService(app.Ticked(expireInterval, s.resolver.Run)).
		WithService(app.Ticked(s.cfg.Buttons.Poll, s.machine.RunButtons)).
		WithService(app.Ticked(displayInterval, s.machine.RunDisplay))

	switch s.cfg.Coin.Mode {
	case "edge":
		w, ok := s.board.(gpio.Watcher)
		if !ok {
			return nil, errors.New("coin edge mode needs a board that can watch lines")
		}
		if err := w.Watch(s.cfg.Coin.Pin, s.cfg.Coin.Debounce, s.sampler.OnEdge); err != nil {
			return nil, fmt.Errorf("watch coin line: %w", err)
		}
		a.WithService(app.ServiceFunc(s.sampler.RunEdges))
	default:
		a.WithService(app.Ticked(s.cfg.Coin.Poll, s.sampler.Run))
	}

	if s.monitor != nil {
		a.WithService(app.Ticked(s.cfg.Monitor.Poll, s.monitor.Run))
	}
	if s.syncer != nil {
		a.WithService(app.Ticked(s.cfg.Remote.Interval, s.syncer.Run))
	}
	if s.web != nil {
		a.WithService(app.ServiceFunc(s.serveHTTP))
	}
	if s.cfg.Console.Enabled && in != nil {
		a.WithService(command.NewConsole(in, out, s.machine.Handle, s.log.Named("console")))
	}
	return a, nil
}

// run starts the controller and blocks until shutdown. Button-started
// dispenses are aborted and waited for before it returns.
func (s *system) run(ctx context.Context, in io.Reader, out io.Writer) error {
	a, err := s.services(in, out)
	if err != nil {
		return err
	}

	s.machine.Start()
	s.pushStatus("STARTUP", "")

	err = a.Run(ctx)

	s.machine.RequestShutdown("stopped")
	s.machine.Wait()
	s.log.Info("shutting down", zap.String("reason", s.machine.Reason()))
	s.pushStatus("SHUTDOWN", s.machine.Reason())
	return err
}

func (s *system) pushStatus(event, reason string) {
	if s.store == nil {
		return
	}
	payload := status.FormatStatusEvent(s.tracker.Snapshot(), event, reason)
	if err := s.store.Push(remote.KeyStatus, string(payload)); err != nil {
		s.log.Warn("status push failed", zap.String("event", event), zap.Error(err))
		return
	}
	s.log.Info("published status", zap.String("event", event))
}

func (s *system) serveHTTP(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.web.ListenAndServe() }()
	s.log.Info("http server listening", zap.String("addr", s.cfg.HTTP.Addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
		defer cancel()
		return s.web.Shutdown(sctx)
	}
}

// close deasserts every output and releases all resources.
func (s *system) close() error {
	errs := []error{s.machine.AllOff()}
	errs = append(errs, s.closeOwned())
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	errs = append(errs, s.board.Close())
	return errors.Join(errs...)
}

// closeOwned closes what newSystem opened itself.
func (s *system) closeOwned() error {
	var errs []error
	if c, ok := s.screen.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}
