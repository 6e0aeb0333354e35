// Package gpio provides digital input/output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
//
// All levels are logical: true means asserted (coin pulse present, button
// pressed, object in the beam, relay energised) regardless of the wiring's
// active level.
package gpio

import "time"

// Reader reads the logical level of an input pin.
type Reader interface {
	Read(pin int) (bool, error)
}

// Writer drives the logical level of an output pin.
type Writer interface {
	Write(pin int, on bool) error
}

// Board is the full pin capability the controller needs.
type Board interface {
	Reader
	Writer

	// Close releases GPIO resources. Outputs are left deasserted.
	Close() error
}

// Watcher delivers asserting edges on an input pin as they happen.
// The handler runs on the driver's goroutine and must not block.
type Watcher interface {
	Watch(pin int, debounce time.Duration, handler func(time.Time)) error
}

// Line describes one requested pin (BCM numbering).
type Line struct {
	Pin       int
	ActiveLow bool
	PullUp    bool
}

// Layout is the set of lines a board requests at startup.
type Layout struct {
	Inputs  []Line
	Outputs []Line
}

// Default pin assignments (BCM numbering).
const (
	DefaultCoinPin     = 17
	DefaultReadyLEDPin = 23
)
