// Package ledger holds the controller's shared counters: spendable credit
// and per-channel stock. Every operation is atomic under the owner's lock;
// no caller ever reads or writes the raw fields.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Ledger is the spendable credit balance. The balance never goes negative.
type Ledger struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{balance: decimal.Zero}
}

// Add increases credit and returns the new balance.
// Non-positive amounts are ignored.
func (l *Ledger) Add(amount decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.IsPositive() {
		l.balance = l.balance.Add(amount)
	}
	return l.balance
}

// TryReserve deducts amount if the balance covers it. On failure the
// balance is unchanged.
func (l *Ledger) TryReserve(amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.IsNegative() || l.balance.LessThan(amount) {
		return false
	}
	l.balance = l.balance.Sub(amount)
	return true
}

// Refund returns a previously reserved amount and returns the new balance.
func (l *Ledger) Refund(amount decimal.Decimal) decimal.Decimal {
	return l.Add(amount)
}

// Balance returns the current credit.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Covers reports whether the balance is at least amount.
func (l *Ledger) Covers(amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance.GreaterThanOrEqual(amount)
}
