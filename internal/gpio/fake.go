package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeBoard is a test double with settable inputs and recorded outputs.
// Safe for concurrent use: the controller reads and writes it from several
// goroutines at once.
type FakeBoard struct {
	mu       sync.Mutex
	levels   map[int]bool
	writes   []Write
	handlers map[int]func(time.Time)

	// ReadErrors and WriteErrors, if set for a pin, are returned instead.
	ReadErrors  map[int]error
	WriteErrors map[int]error

	closed bool
}

// Write records a single output change.
type Write struct {
	Pin int
	On  bool
}

// NewFakeBoard creates a FakeBoard with every pin deasserted.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{
		levels:      make(map[int]bool),
		handlers:    make(map[int]func(time.Time)),
		ReadErrors:  make(map[int]error),
		WriteErrors: make(map[int]error),
	}
}

// Read returns the current level of a pin.
func (f *FakeBoard) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErrors[pin]; err != nil {
		return false, err
	}
	return f.levels[pin], nil
}

// Write sets a pin level and records the change.
func (f *FakeBoard) Write(pin int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErrors[pin]; err != nil {
		return err
	}
	f.levels[pin] = on
	f.writes = append(f.writes, Write{Pin: pin, On: on})
	return nil
}

// Watch registers an edge handler for a pin.
func (f *FakeBoard) Watch(pin int, debounce time.Duration, handler func(time.Time)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("watch pin %d: board closed", pin)
	}
	f.handlers[pin] = handler
	return nil
}

// Set drives an input pin from the test.
func (f *FakeBoard) Set(pin int, on bool) {
	f.mu.Lock()
	f.levels[pin] = on
	f.mu.Unlock()
}

// Level returns the current level of any pin.
func (f *FakeBoard) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Edge invokes the handler registered for pin, if any.
func (f *FakeBoard) Edge(pin int, t time.Time) bool {
	f.mu.Lock()
	h := f.handlers[pin]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(t)
	return true
}

// Writes returns the recorded writes to pin, in order.
func (f *FakeBoard) Writes(pin int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, w := range f.writes {
		if w.Pin == pin {
			out = append(out, w.On)
		}
	}
	return out
}

// Close marks the board closed and deasserts everything.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for pin := range f.levels {
		f.levels[pin] = false
	}
	return nil
}

// Closed reports whether Close was called.
func (f *FakeBoard) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
