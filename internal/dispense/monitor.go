package dispense

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/gpio"
)

// Monitor watches every channel's sensor independently of the dispense
// loops. When an object is seen while a channel's actuator is running it
// signals that channel to stop; the channel itself deasserts and commits.
// Sensor changes on idle channels are logged and otherwise ignored.
type Monitor struct {
	reader   gpio.Reader
	channels []*Channel
	log      *zap.Logger

	last map[string]bool
}

// NewMonitor creates a monitor over the given channels.
func NewMonitor(reader gpio.Reader, log *zap.Logger, channels ...*Channel) *Monitor {
	return &Monitor{
		reader:   reader,
		channels: channels,
		log:      log,
		last:     make(map[string]bool, len(channels)),
	}
}

// Run checks every sensor on each tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			m.Check()
		}
	}
}

// Check reads each sensor once. It returns the IDs of channels that were
// signalled to stop.
func (m *Monitor) Check() []string {
	var stopped []string
	for _, ch := range m.channels {
		present, err := m.reader.Read(ch.SensorPin())
		if err != nil {
			m.log.Debug("sensor read failed", zap.String("channel", ch.ID()), zap.Error(err))
			continue
		}

		if present != m.last[ch.ID()] {
			m.last[ch.ID()] = present
			m.log.Debug("sensor changed", zap.String("channel", ch.ID()), zap.Bool("present", present))
		}

		if present && ch.Stop() {
			m.log.Info("object detected, stopping actuator", zap.String("channel", ch.ID()))
			stopped = append(stopped, ch.ID())
		}
	}
	return stopped
}
