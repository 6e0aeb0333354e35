package machine

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/status"
)

// The methods below are the view the remote sync loop has of the machine.

// Inventory returns the current stock per channel.
func (m *Machine) Inventory() map[string]int {
	return m.deps.Stock.Snapshot()
}

// SetInventory overwrites a channel's stock, e.g. after a remote resupply.
func (m *Machine) SetInventory(channel string, n int) (bool, error) {
	changed, err := m.deps.Stock.Set(channel, n)
	if err != nil {
		return false, err
	}
	if changed {
		m.log.Info("inventory set", zap.String("channel", channel), zap.Int("stock", n))
		m.refresh()
		m.ShowIdle()
	}
	return changed, nil
}

// StatusPayload returns the status snapshot pushed to the remote store.
func (m *Machine) StatusPayload() []byte {
	return status.FormatStatusEvent(m.deps.Tracker.Snapshot(), "STATUS", "")
}

// MoneyCollected returns the total of all recognised coins.
func (m *Machine) MoneyCollected() decimal.Decimal {
	return m.deps.Tracker.Snapshot().MoneyCollected
}

// SetRemoteConnected records remote store reachability.
func (m *Machine) SetRemoteConnected(connected bool) {
	m.deps.Tracker.SetRemoteConnected(connected)
}
