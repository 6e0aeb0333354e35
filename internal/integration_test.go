package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/coin"
	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/gpio"
	"github.com/sweeney/vendo/internal/ledger"
	"github.com/sweeney/vendo/internal/machine"
	"github.com/sweeney/vendo/internal/pulse"
	"github.com/sweeney/vendo/internal/remote"
)

const poll = 10 * time.Millisecond

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// pulseTrain returns line samples for n clean 60ms pulses 40ms apart.
func pulseTrain(n int) []bool {
	var s []bool
	for i := 0; i < n; i++ {
		s = append(s, true, true, true, true, true, true, false, false, false, false)
	}
	return s
}

func idle(n int) []bool { return make([]bool, n) }

func pesoTable(t *testing.T, tolerance int) *coin.Table {
	t.Helper()
	table, err := coin.NewTable(tolerance,
		coin.Denomination{Name: "1 peso", Pulses: 1, Value: decimal.NewFromInt(1)},
		coin.Denomination{Name: "5 peso", Pulses: 5, Value: decimal.NewFromInt(5)},
		coin.Denomination{Name: "10 peso", Pulses: 10, Value: decimal.NewFromInt(10)},
	)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return table
}

// feed runs the sampling loop by hand over samples taken every poll.
func feed(samples []bool, table *coin.Table) []coin.Event {
	deb := pulse.NewDebouncer(50 * time.Millisecond)
	coal := coin.NewCoalescer(table, time.Second)

	var events []coin.Event
	for i, level := range samples {
		now := startTime.Add(time.Duration(i) * poll)
		if at, ok := deb.Sample(level, now); ok {
			events = append(events, coal.Pulse(pulse.Event{Time: at, Channel: "coin"})...)
		}
		events = append(events, coal.Expire(now)...)
	}
	return events
}

// TestIntegrationCoinsToSale follows two coins from the raw line through
// the ledger to a confirmed dispense and its published sale record.
func TestIntegrationCoinsToSale(t *testing.T) {
	var samples []bool
	samples = append(samples, idle(1)...) // baseline
	samples = append(samples, pulseTrain(5)...)
	samples = append(samples, idle(120)...)
	samples = append(samples, pulseTrain(5)...)
	samples = append(samples, idle(120)...)

	events := feed(samples, pesoTable(t, 0))
	if len(events) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(events))
	}

	credit := ledger.New()
	for i, ev := range events {
		if !ev.Recognized || ev.Pulses != 5 {
			t.Errorf("coin %d: expected recognised 5-pulse coin, got %+v", i, ev)
		}
		credit.Add(ev.Value())
	}
	if !credit.Balance().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected credit 10, got %s", credit.Balance())
	}

	board := gpio.NewFakeBoard()
	stock := ledger.NewInventory(map[string]int{"wings": 1})
	tick := make(chan time.Time)
	now := startTime
	ch := dispense.NewChannel(dispense.Config{
		ID:          "wings",
		ActuatorPin: 4,
		SensorPin:   6,
		Cost:        decimal.NewFromInt(10),
		Timeout:     10 * time.Second,
	}, dispense.Deps{
		Board:  board,
		Credit: credit,
		Stock:  stock,
		Log:    zap.NewNop(),
		Now:    func() time.Time { return now },
		Ticker: func(time.Duration) (<-chan time.Time, func()) { return tick, func() {} },
	})

	type result struct {
		a   dispense.Attempt
		err error
	}
	res := make(chan result, 1)
	go func() {
		a, err := ch.Dispense(context.Background())
		res <- result{a, err}
	}()

	deadline := time.After(2 * time.Second)
	for !ch.Active() {
		select {
		case <-deadline:
			t.Fatal("actuator never started")
		case <-time.After(time.Millisecond):
		}
	}
	board.Set(6, true)
	tick <- now

	out := <-res
	if out.err != nil {
		t.Fatalf("dispense: %v", out.err)
	}
	if out.a.Outcome != dispense.OutcomeConfirmed {
		t.Errorf("expected CONFIRMED, got %s", out.a.Outcome)
	}
	if board.Level(4) {
		t.Error("actuator left on")
	}
	if n, _ := stock.Get("wings"); n != 0 {
		t.Errorf("expected stock 0, got %d", n)
	}
	if !credit.Balance().IsZero() {
		t.Errorf("expected credit spent, got %s", credit.Balance())
	}

	store := remote.NewFakeStore()
	if err := store.Publish(remote.KeySales, machine.FormatSale(out.a)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var sale machine.SaleJSON
	if err := json.Unmarshal(store.Events()[0].Payload, &sale); err != nil {
		t.Fatalf("sale payload: invalid JSON: %v", err)
	}
	if sale.Sale.Channel != "wings" || sale.Sale.Cost != "10" || sale.Sale.AttemptID == "" {
		t.Errorf("unexpected sale record %+v", sale.Sale)
	}
}

// TestIntegrationNoCoinAtStartup verifies a line already asserted at
// startup is not counted.
func TestIntegrationNoCoinAtStartup(t *testing.T) {
	samples := make([]bool, 200)
	for i := 0; i < 10; i++ {
		samples[i] = true
	}
	if events := feed(samples, pesoTable(t, 0)); len(events) != 0 {
		t.Errorf("expected no coins, got %+v", events)
	}
}

// TestIntegrationTolerantMatch verifies a dropped pulse still credits the
// nearest coin when tolerance allows it, and is rejected when it does not.
func TestIntegrationTolerantMatch(t *testing.T) {
	var samples []bool
	samples = append(samples, idle(1)...)
	samples = append(samples, pulseTrain(9)...)
	samples = append(samples, idle(120)...)

	exact := feed(samples, pesoTable(t, 0))
	if len(exact) != 1 || exact[0].Recognized {
		t.Errorf("exact: expected one unrecognised coin, got %+v", exact)
	}

	tolerant := feed(samples, pesoTable(t, 1))
	if len(tolerant) != 1 || !tolerant[0].Value().Equal(decimal.NewFromInt(10)) {
		t.Errorf("tolerant: expected a 10 peso coin, got %+v", tolerant)
	}
}
