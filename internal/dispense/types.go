// Package dispense sequences a single dispensing mechanism: credit and stock
// checks, actuator on, sensor-confirmed completion or timeout, actuator off,
// then commit or refund.
package dispense

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// State is a channel's position in the dispense cycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateChecking   State = "CHECKING"
	StateActivating State = "ACTIVATING"
	StateAwaiting   State = "AWAITING_CONFIRMATION"
	StateCommitting State = "COMMITTING"
	StateRefunding  State = "REFUNDING"
)

// Outcome is the result of one dispense attempt.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeTimedOut  Outcome = "TIMED_OUT"
	OutcomeAborted   Outcome = "ABORTED"
)

// Attempt records one dispense cycle.
type Attempt struct {
	ID      string
	Channel string
	Cost    decimal.Decimal
	Start   time.Time
	End     time.Time
	Outcome Outcome

	// Forced is set when the obstruction monitor cut the actuator.
	Forced bool
}

// Expected, recoverable rejections. Callers match with errors.Is.
var (
	ErrBusy               = errors.New("channel busy")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrOutOfStock         = errors.New("out of stock")
	ErrChannelBlocked     = errors.New("channel blocked")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrHardware           = errors.New("actuator failure")
	ErrTimeout            = errors.New("dispense not confirmed")
	ErrCancelled          = errors.New("dispense cancelled")
)

// TickerFunc starts a ticker and returns its channel and a stop function.
type TickerFunc func(time.Duration) (<-chan time.Time, func())

// RealTicker is a TickerFunc backed by time.NewTicker.
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
