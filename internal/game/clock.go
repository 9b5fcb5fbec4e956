package game

import (
	"time"
)

// clock is one seat's timer. Clocks are event-driven: nothing ticks. A
// seat's current remaining time is computed on demand from remainingMs and
// startedAt, and a single deferred timeout message is scheduled whenever
// the clock starts.
//
// Cancellation of the pending timer is best-effort only. Correctness comes
// from the staleness check in Session.handleClockTimeout: a timeout message
// is authoritative only if its seat is still active and its epoch matches
// the clock's current activation.
type clock struct {
	remainingMs int64
	startedAt   time.Time // zero while the clock is stopped
	timer       *time.Timer
	// epoch increments on every activation so a timer surviving a failed
	// Stop cannot be mistaken for the current one.
	epoch uint64
}

// active reports whether the clock is currently running.
func (c *clock) active() bool { return !c.startedAt.IsZero() }

// remaining returns the elapsed-corrected remaining milliseconds at now,
// floored at zero.
func (c *clock) remaining(now time.Time) int64 {
	if !c.active() {
		return c.remainingMs
	}
	rem := c.remainingMs - now.Sub(c.startedAt).Milliseconds()
	if rem < 0 {
		rem = 0
	}
	return rem
}

// startClock activates seat's clock and schedules its timeout message for
// the full current remaining time. The timeout re-enters the session
// mailbox; it is validated against the active set and epoch when processed.
func (s *Session) startClock(seat Seat, now time.Time) {
	c := &s.seats[seat].clock
	c.startedAt = now
	c.epoch++
	epoch := c.epoch
	d := time.Duration(c.remainingMs) * time.Millisecond
	c.timer = time.AfterFunc(d, func() {
		s.enqueue(func() { s.handleClockTimeout(seat, epoch) })
	})
}

// stopClock deactivates seat's clock, storing the elapsed-corrected
// remaining time, and attempts to cancel the pending timeout.
func (s *Session) stopClock(seat Seat, now time.Time) {
	c := &s.seats[seat].clock
	if !c.active() {
		return
	}
	c.remainingMs = c.remaining(now)
	c.startedAt = time.Time{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// handleClockTimeout processes a deferred timeout message. Stale messages
// (seat no longer active, epoch mismatch, or game already over) are
// discarded without touching any state.
func (s *Session) handleClockTimeout(seat Seat, epoch uint64) {
	if s.result != nil {
		return
	}
	c := &s.seats[seat].clock
	if !c.active() || c.epoch != epoch {
		s.log.WithField("seat", seat.String()).Debug("discarding stale clock timeout")
		return
	}

	now := time.Now()
	c.remainingMs = 0
	c.startedAt = time.Time{}
	c.timer = nil

	s.log.WithField("seat", seat.String()).Info("seat flagged on time")
	s.finalize(Result{
		Winner: seat.Team().Opposing(),
		Reason: ReasonTimeout,
		Details: map[string]interface{}{
			"timed_out_seat": seat.String(),
		},
		Timestamp: now,
	})
}

// activeSeats returns the seats whose clocks are currently running.
func (s *Session) activeSeats() []Seat {
	out := make([]Seat, 0, 2)
	for i := Seat(0); i < NumSeats; i++ {
		if s.seats[i].clock.active() {
			out = append(out, i)
		}
	}
	return out
}

// clocksSnapshot returns all four elapsed-corrected clock values at now.
func (s *Session) clocksSnapshot(now time.Time) [NumSeats]int64 {
	var out [NumSeats]int64
	for i := Seat(0); i < NumSeats; i++ {
		out[i] = s.seats[i].clock.remaining(now)
	}
	return out
}
