package machine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/display"
)

// message shows a transient screen that RunDisplay later replaces with the
// idle screen.
func (m *Machine) message(line1, line2 string) {
	m.screenMu.Lock()
	m.holdUntil = m.deps.Now().Add(m.cfg.MessageHold)
	m.idleShown = false
	m.screenMu.Unlock()
	m.show(line1, line2)
}

func (m *Machine) show(line1, line2 string) {
	m.deps.Display.Show(line1, line2)
	m.deps.Tracker.SetDisplay(display.Fit(line1), display.Fit(line2))
}

// ShowIdle shows the credit screen unless a dispense is in progress.
func (m *Machine) ShowIdle() {
	if m.busy() {
		m.screenMu.Lock()
		m.idleShown = false
		m.screenMu.Unlock()
		return
	}

	credit := m.deps.Credit.Balance()
	line1 := "Insert coins..."
	line2 := ""
	if credit.GreaterThan(decimal.Zero) {
		line1 = "Credit: " + credit.String()
		line2 = "Insert coins..."
		if m.Ready() {
			line2 = "Select item"
		}
	}

	m.screenMu.Lock()
	m.idleShown = true
	m.holdUntil = time.Time{}
	m.screenMu.Unlock()
	m.show(line1, line2)
}

func (m *Machine) busy() bool {
	for _, ch := range m.channels {
		if ch.State() != dispense.StateIdle {
			return true
		}
	}
	return false
}

// RunDisplay returns the display to the idle screen once a message has
// been held long enough.
func (m *Machine) RunDisplay(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			m.screenMu.Lock()
			due := !m.idleShown && !m.deps.Now().Before(m.holdUntil)
			m.screenMu.Unlock()
			if due {
				m.ShowIdle()
			}
		}
	}
}
