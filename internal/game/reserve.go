package game

import (
	"github.com/vcsawant/bughouse-sub000/internal/rules"
)

// Reserve is one seat's inventory of droppable captured pieces. Kings are
// never held in reserve.
type Reserve struct {
	Pawn   int `json:"pawn"`
	Knight int `json:"knight"`
	Bishop int `json:"bishop"`
	Rook   int `json:"rook"`
	Queen  int `json:"queen"`
}

// Count returns the held count for piece.
func (r *Reserve) Count(piece rules.Piece) int {
	switch piece {
	case rules.Pawn:
		return r.Pawn
	case rules.Knight:
		return r.Knight
	case rules.Bishop:
		return r.Bishop
	case rules.Rook:
		return r.Rook
	case rules.Queen:
		return r.Queen
	}
	return 0
}

// add increments the held count for piece. Kings are ignored.
func (r *Reserve) add(piece rules.Piece) {
	switch piece {
	case rules.Pawn:
		r.Pawn++
	case rules.Knight:
		r.Knight++
	case rules.Bishop:
		r.Bishop++
	case rules.Rook:
		r.Rook++
	case rules.Queen:
		r.Queen++
	}
}

// remove decrements the held count for piece, flooring at zero. Returns
// false if the count was already zero (ledger out of step with the engine).
func (r *Reserve) remove(piece rules.Piece) bool {
	switch piece {
	case rules.Pawn:
		if r.Pawn > 0 {
			r.Pawn--
			return true
		}
	case rules.Knight:
		if r.Knight > 0 {
			r.Knight--
			return true
		}
	case rules.Bishop:
		if r.Bishop > 0 {
			r.Bishop--
			return true
		}
	case rules.Rook:
		if r.Rook > 0 {
			r.Rook--
			return true
		}
	case rules.Queen:
		if r.Queen > 0 {
			r.Queen--
			return true
		}
	}
	return false
}

// creditCapture routes a captured piece into the correct reserve per the
// cross-board credit table: the capturing seat's teammate on the other
// board receives the piece. Promoted pieces demote to a pawn before credit;
// kings are discarded and credit nothing.
//
// Both the session's ledger and the receiving board's engine are updated so
// drop legality on that board sees the new piece.
func (s *Session) creditCapture(capturer Seat, cap rules.Capture) {
	piece := cap.Piece
	if cap.WasPromoted {
		piece = rules.Pawn
	}
	if piece == rules.King {
		s.log.WithField("seat", capturer.String()).Warn("captured king reported by engine; discarding, no reserve credit")
		return
	}

	target := capturer.CreditSeat()
	s.seats[target].reserve.add(piece)
	s.boards[target.BoardIndex()].CreditReserve(target.Color(), piece)

	s.log.WithFields(map[string]interface{}{
		"capturer": capturer.String(),
		"credited": target.String(),
		"piece":    piece.String(),
	}).Debug("reserve credited")
}

// debitDrop removes a dropped piece from the dropping seat's ledger. Drop
// legality, including reserve availability, was already validated by the
// rule engine; an empty ledger count here means the ledger fell out of step
// and is logged rather than propagated.
func (s *Session) debitDrop(seat Seat, piece rules.Piece) {
	if !s.seats[seat].reserve.remove(piece) {
		s.log.WithFields(map[string]interface{}{
			"seat":  seat.String(),
			"piece": piece.String(),
		}).Warn("drop debited against empty reserve count")
	}
}
