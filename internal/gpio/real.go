//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	mu      sync.Mutex
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
	lines   map[int]Line
}

// NewRealBoard opens the chip and requests every line in the layout.
// Outputs are requested deasserted. Any failure releases what was already
// requested and is returned; the controller must not run half-initialised.
func NewRealBoard(chipName string, layout Layout) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	b := &RealBoard{
		chip:    chip,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
		lines:   make(map[int]Line),
	}

	for _, in := range layout.Inputs {
		l, err := chip.RequestLine(in.Pin, inputOptions(in)...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request input pin %d: %w", in.Pin, err)
		}
		b.inputs[in.Pin] = l
		b.lines[in.Pin] = in
	}

	for _, out := range layout.Outputs {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if out.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		l, err := chip.RequestLine(out.Pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request output pin %d: %w", out.Pin, err)
		}
		b.outputs[out.Pin] = l
		b.lines[out.Pin] = out
	}

	return b, nil
}

func inputOptions(in Line) []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if in.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if in.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	return opts
}

// Read returns the logical level of an input pin.
func (b *RealBoard) Read(pin int) (bool, error) {
	b.mu.Lock()
	l, ok := b.inputs[pin]
	b.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("pin %d not requested as input", pin)
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v == 1, nil
}

// Write drives the logical level of an output pin.
func (b *RealBoard) Write(pin int, on bool) error {
	b.mu.Lock()
	l, ok := b.outputs[pin]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not requested as output", pin)
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Watch re-requests an input line with edge detection. Edges are reported
// against the logical level, so the handler fires when the line asserts.
// The kernel applies the debounce period before reporting.
func (b *RealBoard) Watch(pin int, debounce time.Duration, handler func(time.Time)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	in, ok := b.lines[pin]
	if !ok {
		in = Line{Pin: pin, ActiveLow: true, PullUp: true}
	}
	if old, ok := b.inputs[pin]; ok {
		old.Close()
		delete(b.inputs, pin)
	}

	opts := inputOptions(in)
	opts = append(opts,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			handler(time.Now())
		}),
	)
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	l, err := b.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("watch pin %d: %w", pin, err)
	}
	b.inputs[pin] = l
	b.lines[pin] = in
	return nil
}

// Close releases GPIO resources.
// Outputs are deasserted and then handed back as inputs biased towards their
// inactive level, so relays stay off through a reboot.
func (b *RealBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error

	for pin, l := range b.outputs {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("deassert pin %d: %w", pin, err))
		}
		bias := gpiocdev.WithPullDown
		if b.lines[pin].ActiveLow {
			bias = gpiocdev.WithPullUp
		}
		if err := l.Reconfigure(gpiocdev.AsInput, bias); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	for pin, l := range b.inputs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	b.outputs = map[int]*gpiocdev.Line{}
	b.inputs = map[int]*gpiocdev.Line{}

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	return errors.Join(errs...)
}
