package pulse

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/gpio"
)

const coinPin = 17

// steppedClock returns t0, t0+step, t0+2*step, ... on successive calls.
func steppedClock(step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := t0.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func TestSamplerPolling(t *testing.T) {
	board := gpio.NewFakeBoard()
	out := make(chan Event, 16)
	s := NewSampler("coin", coinPin, board, ms(20), steppedClock(ms(10)), out, zap.NewNop())

	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tick) }()

	// Each level is held for four ticks (40ms): baseline, then two pulses.
	levels := []bool{false, true, false, true, false}
	for _, level := range levels {
		board.Set(coinPin, level)
		for i := 0; i < 4; i++ {
			tick <- time.Time{}
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("expected 2 pulses, got %d", len(out))
	}
	ev := <-out
	if ev.Channel != "coin" {
		t.Errorf("channel: got %q, want coin", ev.Channel)
	}
}

func TestSamplerReadErrorSkipsTick(t *testing.T) {
	board := gpio.NewFakeBoard()
	board.ReadErrors[coinPin] = errors.New("gpio fault")
	out := make(chan Event, 4)
	s := NewSampler("coin", coinPin, board, ms(20), steppedClock(ms(10)), out, zap.NewNop())

	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tick) }()

	for i := 0; i < 5; i++ {
		tick <- time.Time{}
	}
	cancel()
	<-done

	if len(out) != 0 {
		t.Errorf("expected no pulses on read errors, got %d", len(out))
	}
}

func TestSamplerEdgesDropBounces(t *testing.T) {
	out := make(chan Event, 8)
	s := NewSampler("coin", coinPin, gpio.NewFakeBoard(), ms(50), time.Now, out, zap.NewNop())

	s.OnEdge(t0)
	s.OnEdge(t0.Add(ms(5)))   // bounce
	s.OnEdge(t0.Add(ms(100))) // second pulse
	s.OnEdge(t0.Add(ms(120))) // bounce

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunEdges(ctx) }()

	var got []Event
	for len(got) < 2 {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for pulses, got %d", len(got))
		}
	}
	cancel()
	<-done

	if !got[0].Time.Equal(t0) || !got[1].Time.Equal(t0.Add(ms(100))) {
		t.Errorf("unexpected pulse times: %v, %v", got[0].Time, got[1].Time)
	}
	if len(out) != 0 {
		t.Errorf("bounces must be dropped, %d extra pulses", len(out))
	}
}

func TestSamplerEdgeQueueFullDoesNotBlock(t *testing.T) {
	s := NewSampler("coin", coinPin, gpio.NewFakeBoard(), ms(1), time.Now, make(chan Event), zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(s.edges)+10; i++ {
			s.OnEdge(t0.Add(time.Duration(i) * time.Second))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnEdge blocked with a full queue")
	}
}
