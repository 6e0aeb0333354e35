// Package status provides a thread-safe status tracker for the vending
// controller. It is read by the HTTP handlers and the remote sync loop.
package status

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sweeney/vendo/internal/dispense"
)

// Config contains controller configuration for display.
type Config struct {
	Broker            string
	HTTPAddr          string
	CoinTolerance     int
	BurstGapMs        int64
	DispenseTimeoutMs int64
	SettleMs          int64
}

// Channel is the displayed state of one dispensing channel.
type Channel struct {
	ID          string
	Name        string
	Cost        decimal.Decimal
	Stock       int
	State       string
	LastOutcome string
}

// Counts are running totals since start.
type Counts struct {
	CoinsAccepted int
	CoinsRejected int
	Dispensed     int
	TimedOut      int
	Aborted       int
	Rejected      int
}

// Snapshot is a point-in-time view of controller state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Credit          decimal.Decimal
	MoneyCollected  decimal.Decimal
	Channels        []Channel
	Counts          Counts
	Display         [2]string
	RemoteConnected bool
	ShuttingDown    bool
	StartTime       time.Time
	Now             time.Time
	Config          Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Channel returns the channel with the given ID.
func (s Snapshot) Channel(id string) (Channel, bool) {
	for _, c := range s.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Credit:         decimal.Zero,
			MoneyCollected: decimal.Zero,
			StartTime:      startTime,
			Config:         cfg,
		},
	}
}

// SetCredit records the current credit balance.
func (t *Tracker) SetCredit(credit decimal.Decimal) {
	t.mu.Lock()
	t.snap.Credit = credit
	t.mu.Unlock()
}

// SetMoneyCollected sets the collected total, e.g. when restoring from the journal.
func (t *Tracker) SetMoneyCollected(total decimal.Decimal) {
	t.mu.Lock()
	t.snap.MoneyCollected = total
	t.mu.Unlock()
}

// SetChannel inserts or replaces a channel, keeping insertion order.
// An empty LastOutcome keeps the previous one.
func (t *Tracker) SetChannel(c Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Channels {
		if t.snap.Channels[i].ID == c.ID {
			if c.LastOutcome == "" {
				c.LastOutcome = t.snap.Channels[i].LastOutcome
			}
			t.snap.Channels[i] = c
			return
		}
	}
	t.snap.Channels = append(t.snap.Channels, c)
}

// RecordCoin counts a resolved coin. Recognised coins add to the collected total.
func (t *Tracker) RecordCoin(recognized bool, value decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !recognized {
		t.snap.Counts.CoinsRejected++
		return
	}
	t.snap.Counts.CoinsAccepted++
	t.snap.MoneyCollected = t.snap.MoneyCollected.Add(value)
}

// RecordOutcome counts a finished dispense attempt and stores it on the channel.
func (t *Tracker) RecordOutcome(channel string, outcome dispense.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case dispense.OutcomeConfirmed:
		t.snap.Counts.Dispensed++
	case dispense.OutcomeTimedOut:
		t.snap.Counts.TimedOut++
	case dispense.OutcomeAborted:
		t.snap.Counts.Aborted++
	}
	for i := range t.snap.Channels {
		if t.snap.Channels[i].ID == channel {
			t.snap.Channels[i].LastOutcome = string(outcome)
		}
	}
}

// RecordRejected counts a trigger that was refused before the actuator ran.
func (t *Tracker) RecordRejected() {
	t.mu.Lock()
	t.snap.Counts.Rejected++
	t.mu.Unlock()
}

// SetDisplay records the text currently on the display.
func (t *Tracker) SetDisplay(line1, line2 string) {
	t.mu.Lock()
	t.snap.Display = [2]string{line1, line2}
	t.mu.Unlock()
}

// SetRemoteConnected sets the remote store connection status.
func (t *Tracker) SetRemoteConnected(connected bool) {
	t.mu.Lock()
	t.snap.RemoteConnected = connected
	t.mu.Unlock()
}

// SetShuttingDown marks that graceful shutdown has begun.
func (t *Tracker) SetShuttingDown() {
	t.mu.Lock()
	t.snap.ShuttingDown = true
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]Channel(nil), t.snap.Channels...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
