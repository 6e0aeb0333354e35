package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string        `json:"event,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Credit         string        `json:"credit"`
	MoneyCollected string        `json:"money_collected"`
	ShuttingDown   bool          `json:"shutting_down,omitempty"`
	UptimeSeconds  int64         `json:"uptime_seconds"`
	StartTime      string        `json:"start_time"`
	Timestamp      string        `json:"timestamp"`
	Remote         RemoteStatus  `json:"remote"`
	Display        []string      `json:"display"`
	Channels       []ChannelJSON `json:"channels"`
	Counts         CountsJSON    `json:"counts"`
	Config         ConfigJSON    `json:"config"`
}

// RemoteStatus reports remote store connection state.
type RemoteStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// ChannelJSON is the JSON representation of a channel.
type ChannelJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Cost        string `json:"cost"`
	Stock       int    `json:"stock"`
	State       string `json:"state"`
	LastOutcome string `json:"last_outcome,omitempty"`
}

// CountsJSON is the JSON representation of running totals.
type CountsJSON struct {
	CoinsAccepted int `json:"coins_accepted"`
	CoinsRejected int `json:"coins_rejected"`
	Dispensed     int `json:"dispensed"`
	TimedOut      int `json:"timed_out"`
	Aborted       int `json:"aborted"`
	Rejected      int `json:"rejected"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	Broker            string `json:"broker,omitempty"`
	HTTPAddr          string `json:"http_addr"`
	CoinTolerance     int    `json:"coin_tolerance"`
	BurstGapMs        int64  `json:"burst_gap_ms"`
	DispenseTimeoutMs int64  `json:"dispense_timeout_ms"`
	SettleMs          int64  `json:"settle_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for _, c := range snap.Channels {
		state := c.State
		if state == "" {
			state = "UNKNOWN"
		}
		channels = append(channels, ChannelJSON{
			ID:          c.ID,
			Name:        c.Name,
			Cost:        c.Cost.String(),
			Stock:       c.Stock,
			State:       state,
			LastOutcome: c.LastOutcome,
		})
	}

	return StatusInner{
		Credit:         snap.Credit.String(),
		MoneyCollected: snap.MoneyCollected.String(),
		ShuttingDown:   snap.ShuttingDown,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		Remote:         RemoteStatus{Connected: snap.RemoteConnected, Broker: snap.Config.Broker},
		Display:        []string{snap.Display[0], snap.Display[1]},
		Channels:       channels,
		Counts: CountsJSON{
			CoinsAccepted: snap.Counts.CoinsAccepted,
			CoinsRejected: snap.Counts.CoinsRejected,
			Dispensed:     snap.Counts.Dispensed,
			TimedOut:      snap.Counts.TimedOut,
			Aborted:       snap.Counts.Aborted,
			Rejected:      snap.Counts.Rejected,
		},
		Config: ConfigJSON{
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
			CoinTolerance:     snap.Config.CoinTolerance,
			BurstGapMs:        snap.Config.BurstGapMs,
			DispenseTimeoutMs: snap.Config.DispenseTimeoutMs,
			SettleMs:          snap.Config.SettleMs,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status pushed to the remote store.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatOffline returns the last-will payload published when the
// controller drops off the network.
func FormatOffline() []byte {
	return []byte(`{"status":{"event":"OFFLINE"}}`)
}
