// Package remote mirrors inventory, commands and status to a network store.
// The store is eventually consistent and never load-bearing: every failure
// is treated as "no change" and retried on the next interval.
package remote

import (
	"errors"
	"fmt"
)

// ErrUnavailable means the store could not be reached or holds no value.
var ErrUnavailable = errors.New("remote store unavailable")

// Store is a key/value view of the remote service.
type Store interface {
	// Pull returns the last known value for key.
	Pull(key string) (string, error)

	// Push stores value under key. An empty value clears the key.
	Push(key, value string) error

	// Publish sends a one-off event. Events are buffered while offline.
	Publish(key string, payload []byte) error

	// Connected reports whether the store is currently reachable.
	Connected() bool

	Close() error
}

// Keys relative to the machine's prefix.
const (
	KeyShutdown       = "command/shutdown"
	KeyCredit         = "command/credit"
	KeyStatus         = "status"
	KeySales          = "sales"
	KeyMoneyCollected = "money_collected"
)

// KeyInventory is the stock key for a channel.
func KeyInventory(channel string) string {
	return fmt.Sprintf("inventory/%s", channel)
}
