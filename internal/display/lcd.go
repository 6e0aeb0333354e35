package display

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Command prefix and codes for serial character LCD backpacks.
const (
	lcdCommand = 0xFE
	lcdClear   = 0x01
	lcdLine2   = 0xC0
)

// SerialLCD is a 16x2 character LCD behind a serial backpack.
type SerialLCD struct {
	w io.WriteCloser
}

// OpenSerialLCD opens the serial port the display is attached to.
func OpenSerialLCD(port string, baud int) (*SerialLCD, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open display port %s: %w", port, err)
	}
	return NewSerialLCD(p), nil
}

// NewSerialLCD drives a display over an already open writer.
func NewSerialLCD(w io.WriteCloser) *SerialLCD {
	return &SerialLCD{w: w}
}

// Show clears the display and writes both lines as one frame.
func (l *SerialLCD) Show(line1, line2 string) error {
	frame := make([]byte, 0, 2*Width+4)
	frame = append(frame, lcdCommand, lcdClear)
	frame = append(frame, Fit(line1)...)
	frame = append(frame, lcdCommand, lcdLine2)
	frame = append(frame, Fit(line2)...)

	if _, err := l.w.Write(frame); err != nil {
		return fmt.Errorf("write display: %w", err)
	}
	return nil
}

// Close releases the port.
func (l *SerialLCD) Close() error {
	return l.w.Close()
}
