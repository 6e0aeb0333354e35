package dispense

import "time"

// Step tells the driver what to do after a sequencer transition.
type Step int

const (
	// StepWait keeps the actuator asserted and waits for the next tick.
	StepWait Step = iota
	// StepRelease deasserts the actuator and commits the sale.
	StepRelease
	// StepTimeout deasserts the actuator and refunds.
	StepTimeout
)

// Sequencer is the per-channel state machine:
//
//	Idle → Checking → Activating → AwaitingConfirmation → {Committing | Refunding} → Idle
//
// It holds no I/O and never sleeps. The Channel driver calls it under its
// lock and performs the side effects each transition asks for.
type Sequencer struct {
	state   State
	timeout time.Duration
	settle  time.Duration

	start       time.Time
	confirmedAt time.Time
}

// NewSequencer creates an idle sequencer.
func NewSequencer(timeout, settle time.Duration) *Sequencer {
	return &Sequencer{state: StateIdle, timeout: timeout, settle: settle}
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Begin claims the channel for a new attempt. A channel that is not idle
// rejects the trigger; attempts are never queued.
func (s *Sequencer) Begin() error {
	if s.state != StateIdle {
		return ErrBusy
	}
	s.state = StateChecking
	return nil
}

// Abort returns a channel whose pre-checks failed to idle.
func (s *Sequencer) Abort() {
	if s.state == StateChecking {
		s.state = StateIdle
	}
}

// Activate records that the actuator has been asserted.
func (s *Sequencer) Activate(now time.Time) {
	if s.state != StateChecking {
		return
	}
	s.state = StateActivating
	s.start = now
	s.confirmedAt = time.Time{}
}

// Await enters the bounded wait for sensor confirmation.
func (s *Sequencer) Await() {
	if s.state == StateActivating {
		s.state = StateAwaiting
	}
}

// Observe feeds one sensor reading taken at now.
//
// Presence starts the settle delay; the actuator is released once it has
// elapsed. Without presence, reaching the timeout ends the attempt. A
// reading that shows presence on the timeout tick still counts.
func (s *Sequencer) Observe(now time.Time, present bool) Step {
	if s.state != StateAwaiting {
		return StepWait
	}

	if s.confirmedAt.IsZero() {
		switch {
		case present:
			s.confirmedAt = now
		case now.Sub(s.start) >= s.timeout:
			s.state = StateRefunding
			return StepTimeout
		default:
			return StepWait
		}
	}

	if now.Sub(s.confirmedAt) >= s.settle {
		s.state = StateCommitting
		return StepRelease
	}
	return StepWait
}

// ForceStop handles a safety cutoff signal: the object was seen while the
// actuator was running, so the attempt is confirmed and released at once.
func (s *Sequencer) ForceStop(now time.Time) Step {
	if s.state != StateActivating && s.state != StateAwaiting {
		return StepWait
	}
	if s.confirmedAt.IsZero() {
		s.confirmedAt = now
	}
	s.state = StateCommitting
	return StepRelease
}

// Cancel abandons an active attempt (shutdown); it will be refunded.
func (s *Sequencer) Cancel() {
	if s.state == StateActivating || s.state == StateAwaiting {
		s.state = StateRefunding
	}
}

// Finish completes a commit or refund and returns the channel to idle.
func (s *Sequencer) Finish() {
	if s.state == StateCommitting || s.state == StateRefunding {
		s.state = StateIdle
		s.start = time.Time{}
		s.confirmedAt = time.Time{}
	}
}

// Active reports whether the actuator is running and the object has not yet
// been seen.
func (s *Sequencer) Active() bool {
	return (s.state == StateActivating || s.state == StateAwaiting) && s.confirmedAt.IsZero()
}
