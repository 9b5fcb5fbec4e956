package game

import (
	"fmt"

	"github.com/vcsawant/bughouse-sub000/internal/rules"
)

// Seat is one of the four fixed positions in a session. Seats are indexed
// board-major so Board/Color arithmetic stays trivial.
type Seat uint8

const (
	SeatBoard1White Seat = iota
	SeatBoard1Black
	SeatBoard2White
	SeatBoard2Black

	NumSeats = 4
)

var seatNames = [NumSeats]string{
	"board1_white", "board1_black", "board2_white", "board2_black",
}

// String returns the canonical seat name, e.g. "board1_white".
func (s Seat) String() string {
	if s < NumSeats {
		return seatNames[s]
	}
	return fmt.Sprintf("seat(%d)", uint8(s))
}

// ParseSeat converts a canonical seat name back to a Seat.
func ParseSeat(name string) (Seat, error) {
	for i, n := range seatNames {
		if n == name {
			return Seat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown seat %q", name)
}

// BoardIndex returns 0 for board 1 and 1 for board 2.
func (s Seat) BoardIndex() int { return int(s) / 2 }

// Board returns the 1-based board number.
func (s Seat) Board() int { return s.BoardIndex() + 1 }

// Color returns the seat's color on its board.
func (s Seat) Color() rules.Color {
	if s%2 == 0 {
		return rules.White
	}
	return rules.Black
}

// Opposite returns the other seat on the same board.
func (s Seat) Opposite() Seat { return s ^ 1 }

// Partner returns the seat's teammate on the other board. Teams are the
// diagonal pairing, so the partner plays the opposite color.
func (s Seat) Partner() Seat { return s ^ 3 }

// CreditSeat returns the seat whose reserve a capture by s feeds. Captured
// pieces go to the teammate on the other board, which is the Partner.
func (s Seat) CreditSeat() Seat { return s.Partner() }

// Team identifies one of the two diagonal teams, or no team (for a draw).
type Team uint8

const (
	TeamNone Team = iota
	Team1
	Team2
)

// String returns "team_1", "team_2" or "none".
func (t Team) String() string {
	switch t {
	case Team1:
		return "team_1"
	case Team2:
		return "team_2"
	}
	return "none"
}

// Opposing returns the other team, or TeamNone for TeamNone.
func (t Team) Opposing() Team {
	switch t {
	case Team1:
		return Team2
	case Team2:
		return Team1
	}
	return TeamNone
}

// Team returns the team the seat belongs to:
// team_1 = {board1_white, board2_black}, team_2 = {board1_black, board2_white}.
func (s Seat) Team() Team {
	switch s {
	case SeatBoard1White, SeatBoard2Black:
		return Team1
	default:
		return Team2
	}
}

// seatFor returns the seat for a 0-based board index and color.
func seatFor(boardIdx int, color rules.Color) Seat {
	s := Seat(boardIdx * 2)
	if color == rules.Black {
		s++
	}
	return s
}

// teamForBoardWinner maps a per-board winning color to the global winning
// team. The mapping is crossed because teams are diagonal: a white win on
// board 1 is a team_1 win, a white win on board 2 is a team_2 win.
func teamForBoardWinner(boardIdx int, winner rules.Color) Team {
	return seatFor(boardIdx, winner).Team()
}
