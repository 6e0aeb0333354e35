package remote

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Local is the controller state the syncer mirrors.
type Local interface {
	Inventory() map[string]int
	SetInventory(channel string, n int) (bool, error)
	StatusPayload() []byte
	MoneyCollected() decimal.Decimal
	AddCredit(amount decimal.Decimal)
	RequestShutdown(reason string)
	SetRemoteConnected(connected bool)
}

// Syncer is the remote sync loop. All store traffic happens on its own
// goroutine, so a slow or absent store never blocks local operations.
// Change notifications are coalesced: any number of Notify calls while a
// push is in flight produce one further push of the latest state.
type Syncer struct {
	store Store
	local Local
	log   *zap.Logger

	kick  chan struct{}
	sales chan []byte

	lastPushed map[string]int
	lastMoney  string
}

// NewSyncer creates a syncer.
func NewSyncer(store Store, local Local, log *zap.Logger) *Syncer {
	return &Syncer{
		store:      store,
		local:      local,
		log:        log,
		kick:       make(chan struct{}, 1),
		sales:      make(chan []byte, 64),
		lastPushed: make(map[string]int),
	}
}

// Notify requests a push of the current state. It never blocks.
func (s *Syncer) Notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// PublishSale queues a sale record. It never blocks; a full queue drops
// the record.
func (s *Syncer) PublishSale(payload []byte) {
	select {
	case s.sales <- payload:
	default:
		s.log.Warn("sale queue full, dropping record")
	}
}

// Run syncs on every tick and on every notification until ctx is
// cancelled. It syncs once immediately on start.
func (s *Syncer) Run(ctx context.Context, tick <-chan time.Time) error {
	s.Sync()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.Sync()
		case <-s.kick:
			s.reconcile()
			s.push()
		case payload := <-s.sales:
			if err := s.store.Publish(KeySales, payload); err != nil {
				s.log.Warn("sale publish failed", zap.Error(err))
			}
		}
	}
}

// Sync runs one full cycle: reconcile inventory, apply remote commands,
// push local state.
func (s *Syncer) Sync() {
	s.local.SetRemoteConnected(s.store.Connected())
	s.reconcile()
	s.commands()
	s.push()
}

// reconcile applies remote inventory. Remote is authoritative for resupply,
// but a value equal to what this machine last pushed is its own echo and
// must not roll back local sales made since.
func (s *Syncer) reconcile() {
	for id, local := range s.local.Inventory() {
		raw, err := s.store.Pull(KeyInventory(id))
		if err != nil {
			if !errors.Is(err, ErrUnavailable) {
				s.log.Warn("inventory pull failed", zap.String("channel", id), zap.Error(err))
			}
			continue
		}
		if raw == "" {
			continue
		}
		remote, err := strconv.Atoi(raw)
		if err != nil || remote < 0 {
			s.log.Warn("ignoring invalid remote inventory", zap.String("channel", id), zap.String("value", raw))
			continue
		}

		if last, ok := s.lastPushed[id]; ok && last == remote {
			continue
		}
		s.lastPushed[id] = remote
		if remote == local {
			continue
		}

		if _, err := s.local.SetInventory(id, remote); err != nil {
			s.log.Warn("inventory update rejected", zap.String("channel", id), zap.Error(err))
			continue
		}
		s.log.Info("inventory updated from remote",
			zap.String("channel", id),
			zap.Int("from", local),
			zap.Int("to", remote),
		)
	}
}

func (s *Syncer) commands() {
	if raw, err := s.store.Pull(KeyShutdown); err == nil && raw != "" {
		if on, _ := strconv.ParseBool(raw); on {
			if err := s.store.Push(KeyShutdown, ""); err != nil {
				s.log.Warn("shutdown flag clear failed", zap.Error(err))
			}
			s.log.Info("remote shutdown requested")
			s.local.RequestShutdown("remote")
		}
	}

	if raw, err := s.store.Pull(KeyCredit); err == nil && raw != "" {
		// Clear first: a command that cannot be cleared would be applied
		// again on the next cycle.
		if err := s.store.Push(KeyCredit, ""); err != nil {
			s.log.Warn("credit command clear failed, not applied", zap.Error(err))
			return
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.IsPositive() {
			s.log.Warn("ignoring invalid remote credit", zap.String("value", raw))
			return
		}
		s.log.Info("remote credit added", zap.String("amount", amount.String()))
		s.local.AddCredit(amount)
	}
}

// push writes local state. Failures are logged and retried next cycle.
func (s *Syncer) push() {
	if !s.store.Connected() {
		return
	}

	for id, n := range s.local.Inventory() {
		if last, ok := s.lastPushed[id]; ok && last == n {
			continue
		}
		if err := s.store.Push(KeyInventory(id), strconv.Itoa(n)); err != nil {
			s.log.Warn("inventory push failed", zap.String("channel", id), zap.Error(err))
			continue
		}
		s.lastPushed[id] = n
	}

	if money := s.local.MoneyCollected().String(); money != s.lastMoney {
		if err := s.store.Push(KeyMoneyCollected, money); err != nil {
			s.log.Warn("money collected push failed", zap.Error(err))
		} else {
			s.lastMoney = money
		}
	}

	if err := s.store.Push(KeyStatus, string(s.local.StatusPayload())); err != nil {
		s.log.Warn("status push failed", zap.Error(err))
	}
}
