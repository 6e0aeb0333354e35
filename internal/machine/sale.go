package machine

import (
	"encoding/json"
	"time"

	"github.com/sweeney/vendo/internal/dispense"
)

// SaleJSON is the envelope for a sale record.
type SaleJSON struct {
	Sale SaleInner `json:"sale"`
}

// SaleInner describes one finished dispense attempt.
type SaleInner struct {
	AttemptID string `json:"attempt_id"`
	Channel   string `json:"channel"`
	Cost      string `json:"cost"`
	Outcome   string `json:"outcome"`
	Forced    bool   `json:"forced,omitempty"`
	Start     string `json:"start"`
	End       string `json:"end"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// FormatSale returns the JSON record published for an attempt.
func FormatSale(a dispense.Attempt) []byte {
	data, _ := json.Marshal(SaleJSON{Sale: SaleInner{
		AttemptID: a.ID,
		Channel:   a.Channel,
		Cost:      a.Cost.String(),
		Outcome:   string(a.Outcome),
		Forced:    a.Forced,
		Start:     a.Start.UTC().Format(time.RFC3339Nano),
		End:       a.End.UTC().Format(time.RFC3339Nano),
		ElapsedMs: a.End.Sub(a.Start).Milliseconds(),
	}})
	return data
}
