package game

import (
	"time"

	"github.com/google/uuid"
)

// Reason names a terminal result's cause. Rule engines may report kinds
// beyond the built-in set; those pass through as-is.
type Reason string

const (
	ReasonKingCaptured Reason = "king_captured"
	ReasonCheckmate    Reason = "checkmate"
	ReasonTimeout      Reason = "timeout"
	ReasonResignation  Reason = "resignation"
	ReasonAgreement    Reason = "agreement"
)

// Result is the immutable end-of-session outcome. Winner is TeamNone for a
// draw.
type Result struct {
	Winner    Team                   `json:"winner"`
	Reason    Reason                 `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// MoveKind distinguishes ordinary moves from reserve drops.
type MoveKind string

const (
	MoveKindMove MoveKind = "move"
	MoveKindDrop MoveKind = "drop"
)

// MoveRecord is one entry of the append-only move history. Each record
// snapshots all four clocks and both boards' positions and reserves at the
// instant it was appended, which makes the history a deterministic replay.
type MoveRecord struct {
	ID        uuid.UUID          `json:"id"`
	Board     int                `json:"board"`
	Seat      string             `json:"seat"`
	Kind      MoveKind           `json:"kind"`
	Notation  string             `json:"notation"`
	ElapsedMs int64              `json:"elapsedMs"` // since session start
	Clocks    [NumSeats]int64    `json:"clocks"`
	Positions [2]string          `json:"positions"`
	Reserves  [NumSeats]Reserve  `json:"reserves"`
}

// PlayerOutcome is the per-player result handed to the persistence sink.
type PlayerOutcome string

const (
	OutcomeWin  PlayerOutcome = "win"
	OutcomeLoss PlayerOutcome = "loss"
	OutcomeDraw PlayerOutcome = "draw"
)

// CompletionRecord is the single record handed to the persistence sink when
// a session reaches its terminal Result.
type CompletionRecord struct {
	SessionID      uuid.UUID                    `json:"sessionId"`
	Result         Result                       `json:"result"`
	FinalPositions [2]string                    `json:"finalPositions"`
	FinalReserves  [NumSeats]Reserve            `json:"finalReserves"`
	Moves          []MoveRecord                 `json:"moves"`
	Outcomes       map[uuid.UUID]PlayerOutcome  `json:"outcomes"`
}

// appendMove builds and appends the move record for a just-applied move or
// drop. The snapshot is taken before clocks advance, so the record reflects
// the instant the move landed.
func (s *Session) appendMove(seat Seat, kind MoveKind, notation string, now time.Time) {
	rec := MoveRecord{
		ID:        uuid.New(),
		Board:     seat.Board(),
		Seat:      seat.String(),
		Kind:      kind,
		Notation:  notation,
		ElapsedMs: now.Sub(s.createdAt).Milliseconds(),
		Clocks:    s.clocksSnapshot(now),
		Positions: [2]string{s.boards[0].PositionSnapshot(), s.boards[1].PositionSnapshot()},
	}
	for i := Seat(0); i < NumSeats; i++ {
		rec.Reserves[i] = s.seats[i].reserve
	}
	s.moves = append(s.moves, rec)
	s.lastMove = &s.moves[len(s.moves)-1]
	s.journalMove(rec)
}

// playerOutcomes maps every occupant to win/loss/draw for the completion
// record. An occupant seated on both teams (a dual-seat player spanning the
// diagonal) is recorded as a draw.
func (s *Session) playerOutcomes(winner Team) map[uuid.UUID]PlayerOutcome {
	out := make(map[uuid.UUID]PlayerOutcome, NumSeats)
	for i := Seat(0); i < NumSeats; i++ {
		p := s.seats[i].occupant
		var o PlayerOutcome
		switch {
		case winner == TeamNone:
			o = OutcomeDraw
		case i.Team() == winner:
			o = OutcomeWin
		default:
			o = OutcomeLoss
		}
		if prev, seen := out[p.ID]; seen && prev != o {
			out[p.ID] = OutcomeDraw
			continue
		}
		out[p.ID] = o
	}
	return out
}

// completionRecord assembles the persistence-sink record from final state.
func (s *Session) completionRecord() *CompletionRecord {
	rec := &CompletionRecord{
		SessionID:      s.id,
		Result:         *s.result,
		FinalPositions: [2]string{s.boards[0].PositionSnapshot(), s.boards[1].PositionSnapshot()},
		Moves:          s.moves,
		Outcomes:       s.playerOutcomes(s.result.Winner),
	}
	for i := Seat(0); i < NumSeats; i++ {
		rec.FinalReserves[i] = s.seats[i].reserve
	}
	return rec
}
