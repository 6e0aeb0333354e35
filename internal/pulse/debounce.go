// Package pulse turns a raw digital input into debounced pulse events.
// Debouncer holds no I/O and never sleeps: time is always passed in.
package pulse

import "time"

// Debouncer detects asserting edges that stay asserted for a full window.
//
// The first sample only establishes the baseline level, so a line that is
// already asserted at startup never produces a spurious edge. A release is
// accepted immediately; only assertions are held to the window.
type Debouncer struct {
	window time.Duration

	baselined    bool
	stable       bool
	pending      bool
	pendingSince time.Time
}

// NewDebouncer creates a Debouncer with the given confirmation window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Sample feeds one level reading. It reports whether an asserting edge was
// confirmed by this sample, and if so the time the edge started.
func (d *Debouncer) Sample(asserted bool, now time.Time) (time.Time, bool) {
	if !d.baselined {
		d.baselined = true
		d.stable = asserted
		return time.Time{}, false
	}

	if !asserted {
		// Released (or bounced back before confirmation).
		d.stable = false
		d.pending = false
		return time.Time{}, false
	}

	if d.stable {
		return time.Time{}, false
	}

	if !d.pending {
		d.pending = true
		d.pendingSince = now
		if d.window > 0 {
			return time.Time{}, false
		}
	}

	if now.Sub(d.pendingSince) >= d.window {
		d.stable = true
		d.pending = false
		return d.pendingSince, true
	}
	return time.Time{}, false
}
