package game

import (
	"time"

	"github.com/google/uuid"
)

// SeatInfo describes one seat in a snapshot.
type SeatInfo struct {
	Seat     string    `json:"seat"`
	PlayerID uuid.UUID `json:"playerId"`
	Username string    `json:"username"`
	IsBot    bool      `json:"isBot"`
	ClockMs  int64     `json:"clockMs"`
	Reserve  Reserve   `json:"reserve"`
}

// VoteTally reports progress toward one team's resignation quorum.
type VoteTally struct {
	Count  int `json:"count"`
	Needed int `json:"needed"`
}

// DrawTally reports progress toward the all-humans draw quorum.
type DrawTally struct {
	Count     int `json:"count"`
	Needed    int `json:"needed"`
	Available int `json:"available"`
}

// Snapshot is the full observable session state broadcast to observers.
// Clock values are elapsed-corrected at snapshot time.
type Snapshot struct {
	SessionID   uuid.UUID          `json:"sessionId"`
	Boards      [2]string          `json:"boards"`
	Seats       [NumSeats]SeatInfo `json:"seats"`
	ActiveSeats []string           `json:"activeSeats"`
	LastMove    *MoveRecord        `json:"lastMove,omitempty"`
	MoveCount   int                `json:"moveCount"`
	Result      *Result            `json:"result,omitempty"`
	ResignVotes map[string]VoteTally `json:"resignVotes"`
	DrawVotes   DrawTally          `json:"drawVotes"`
}

// snapshot assembles the observable state. Runs on the actor loop, so it
// reads without synchronization.
func (s *Session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Boards:    [2]string{s.boards[0].PositionSnapshot(), s.boards[1].PositionSnapshot()},
		LastMove:  s.lastMove,
		MoveCount: len(s.moves),
		Result:    s.result,
	}

	for i := Seat(0); i < NumSeats; i++ {
		st := s.seats[i]
		snap.Seats[i] = SeatInfo{
			Seat:     i.String(),
			PlayerID: st.occupant.ID,
			Username: st.occupant.Username,
			IsBot:    st.occupant.IsBot,
			ClockMs:  st.clock.remaining(now),
			Reserve:  st.reserve,
		}
	}

	active := s.activeSeats()
	snap.ActiveSeats = make([]string, len(active))
	for i, seat := range active {
		snap.ActiveSeats[i] = seat.String()
	}

	snap.ResignVotes = make(map[string]VoteTally, 2)
	for _, team := range []Team{Team1, Team2} {
		humans := s.teamHumans(team)
		snap.ResignVotes[team.String()] = VoteTally{
			Count:  countVoted(humans, s.resignVotes),
			Needed: len(humans),
		}
	}

	humans := s.allHumans()
	snap.DrawVotes = DrawTally{
		Count:     countVoted(humans, s.drawOffers),
		Needed:    len(humans),
		Available: len(humans),
	}

	return snap
}

// RawPosition is the bot query view: both raw positions (including
// reserves) plus elapsed-corrected clocks. Transport framing for engine
// adapters is out of scope here.
type RawPosition struct {
	Board1 string          `json:"board1"`
	Board2 string          `json:"board2"`
	Clocks [NumSeats]int64 `json:"clocks"`
}
