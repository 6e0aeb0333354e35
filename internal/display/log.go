package display

import "go.uber.org/zap"

// LogDisplay writes display lines to the log. Used when no panel is fitted.
type LogDisplay struct {
	log *zap.Logger
}

// NewLogDisplay creates a LogDisplay.
func NewLogDisplay(log *zap.Logger) *LogDisplay {
	return &LogDisplay{log: log}
}

// Show logs both lines.
func (d *LogDisplay) Show(line1, line2 string) error {
	d.log.Info("display", zap.String("line1", line1), zap.String("line2", line2))
	return nil
}
