package machine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/pulse"
)

// RunButtons polls the front-panel buttons on every tick. A confirmed press
// starts a dispense on its own goroutine so one channel's wait never
// delays another's button.
func (m *Machine) RunButtons(ctx context.Context, tick <-chan time.Time) error {
	type button struct {
		pin     int
		channel string
		deb     *pulse.Debouncer
	}
	var buttons []button
	for _, spec := range m.cfg.Channels {
		if spec.ButtonPin >= 0 {
			buttons = append(buttons, button{spec.ButtonPin, spec.ID, pulse.NewDebouncer(m.cfg.ButtonDebounce)})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			now := m.deps.Now()
			for _, b := range buttons {
				level, err := m.deps.Board.Read(b.pin)
				if err != nil {
					m.log.Warn("button read failed", zap.Int("pin", b.pin), zap.Error(err))
					continue
				}
				if _, pressed := b.deb.Sample(level, now); pressed {
					m.press(ctx, b.channel)
				}
			}
		}
	}
}

func (m *Machine) press(ctx context.Context, channel string) {
	m.log.Debug("button pressed", zap.String("channel", channel))
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if _, err := m.Dispense(ctx, channel); errors.Is(err, dispense.ErrCancelled) {
			m.log.Info("button dispense cancelled", zap.String("channel", channel))
		}
	}()
}
