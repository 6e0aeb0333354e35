package coin

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sweeney/vendo/internal/pulse"
)

// Event is the outcome of one resolved burst.
type Event struct {
	Channel      string
	Time         time.Time
	Pulses       int
	Recognized   bool
	Denomination Denomination
}

// Value returns the credit the event is worth (zero if unrecognised).
func (e Event) Value() decimal.Decimal {
	if !e.Recognized {
		return decimal.Zero
	}
	return e.Denomination.Value
}

// Burst accumulates pulses for one coin insertion.
type Burst struct {
	Channel   string
	Count     int
	Start     time.Time
	LastPulse time.Time
}

// Coalescer groups pulses separated by less than gap into bursts and resolves
// each burst exactly once: when the next pulse arrives after the gap, or when
// Expire observes the gap has elapsed.
//
// Not safe for concurrent use; it is owned by a single goroutine.
type Coalescer struct {
	table  *Table
	gap    time.Duration
	bursts map[string]*Burst
}

// NewCoalescer creates a Coalescer. gap is the burst continuation threshold.
func NewCoalescer(table *Table, gap time.Duration) *Coalescer {
	return &Coalescer{
		table:  table,
		gap:    gap,
		bursts: make(map[string]*Burst),
	}
}

// Pulse adds a pulse event. If it starts a new burst, the previous burst on
// the same channel is resolved and returned.
func (c *Coalescer) Pulse(ev pulse.Event) []Event {
	return c.add(ev.Channel, 1, ev.Time)
}

// Inject adds n pulses at once, as if a coin with that signature was inserted.
func (c *Coalescer) Inject(channel string, n int, now time.Time) []Event {
	if n <= 0 {
		return nil
	}
	return c.add(channel, n, now)
}

func (c *Coalescer) add(channel string, n int, at time.Time) []Event {
	var events []Event

	b := c.bursts[channel]
	if b != nil && at.Sub(b.LastPulse) > c.gap {
		events = append(events, c.resolve(b))
		b = nil
	}
	if b == nil {
		b = &Burst{Channel: channel, Start: at}
		c.bursts[channel] = b
	}
	b.Count += n
	b.LastPulse = at

	return events
}

// Expire resolves every burst whose last pulse is older than the gap.
func (c *Coalescer) Expire(now time.Time) []Event {
	var events []Event
	for _, b := range c.bursts {
		if now.Sub(b.LastPulse) > c.gap {
			events = append(events, c.resolve(b))
		}
	}
	return events
}

// Discard drops all open bursts without resolving them and returns them.
func (c *Coalescer) Discard() []Burst {
	var out []Burst
	for ch, b := range c.bursts {
		out = append(out, *b)
		delete(c.bursts, ch)
	}
	return out
}

// Open returns the number of open bursts.
func (c *Coalescer) Open() int {
	return len(c.bursts)
}

func (c *Coalescer) resolve(b *Burst) Event {
	delete(c.bursts, b.Channel)
	ev := Event{
		Channel: b.Channel,
		Time:    b.LastPulse,
		Pulses:  b.Count,
	}
	if d, ok := c.table.Match(b.Count); ok {
		ev.Recognized = true
		ev.Denomination = d
	}
	return ev
}
