// Package display drives the two-line status display. Output is best
// effort: failures are logged and never reach the caller.
package display

import (
	"sync"

	"go.uber.org/zap"
)

// Width is the number of characters per line.
const Width = 16

// Display shows two lines of text.
type Display interface {
	Show(line1, line2 string) error
}

// Fit truncates s to Width characters.
func Fit(s string) string {
	r := []rune(s)
	if len(r) > Width {
		return string(r[:Width])
	}
	return s
}

// Serialized guards a Display so that only one writer at a time sends
// characters. It is safe to call from any goroutine.
type Serialized struct {
	mu    sync.Mutex
	d     Display
	log   *zap.Logger
	line1 string
	line2 string
}

// NewSerialized wraps d.
func NewSerialized(d Display, log *zap.Logger) *Serialized {
	return &Serialized{d: d, log: log}
}

// Show writes both lines, truncated to Width. Errors are logged.
func (s *Serialized) Show(line1, line2 string) {
	line1, line2 = Fit(line1), Fit(line2)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.line1, s.line2 = line1, line2
	if err := s.d.Show(line1, line2); err != nil {
		s.log.Warn("display write failed", zap.Error(err))
	}
}

// Lines returns the text most recently requested.
func (s *Serialized) Lines() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line1, s.line2
}
