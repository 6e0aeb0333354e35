//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(chipName string, layout Layout) (*RealBoard, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (b *RealBoard) Read(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Write is not implemented on non-Linux platforms.
func (b *RealBoard) Write(pin int, on bool) error {
	return errors.New("gpio: not supported")
}

// Watch is not implemented on non-Linux platforms.
func (b *RealBoard) Watch(pin int, debounce time.Duration, handler func(time.Time)) error {
	return errors.New("gpio: not supported")
}

// Close is a no-op on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}
