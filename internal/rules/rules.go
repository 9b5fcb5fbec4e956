// Package rules defines the rule-engine collaborator consumed by the game
// coordinator. The coordinator never computes move legality, check or
// checkmate itself; it submits moves to an Engine and acts on the verdict.
package rules

import (
	"fmt"
	"sort"
	"sync"
)

// Color identifies one side of a single board.
type Color uint8

const (
	White Color = iota
	Black
)

// String returns "white" or "black".
func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Piece identifies a piece kind. Kings exist on the board but are never
// droppable, so reserve code treats King as a discard.
type Piece uint8

const (
	Pawn Piece = iota
	Knight
	Bishop
	Rook
	Queen
	King
)

var pieceNames = [...]string{"pawn", "knight", "bishop", "rook", "queen", "king"}

// String returns the lowercase piece name.
func (p Piece) String() string {
	if int(p) < len(pieceNames) {
		return pieceNames[p]
	}
	return "unknown"
}

// ParsePiece converts a lowercase piece name back to a Piece.
func ParsePiece(s string) (Piece, error) {
	for i, name := range pieceNames {
		if name == s {
			return Piece(i), nil
		}
	}
	return 0, fmt.Errorf("unknown piece %q", s)
}

// Verdict classifies the outcome of submitting a move or drop to an Engine.
type Verdict uint8

const (
	// Continue: the move was applied and play goes on.
	Continue Verdict = iota
	// Terminal: the move was applied and ended this board's game.
	Terminal
	// Illegal: the move was rejected; no board state changed.
	Illegal
)

// MoveResult is the engine's answer to Move or DropMove.
type MoveResult struct {
	Verdict Verdict
	// Kind names the terminal condition ("checkmate", "king_captured", ...).
	// Set only when Verdict == Terminal.
	Kind string
	// Winner is the winning color on this board when Verdict == Terminal.
	Winner Color
	// Reason is the engine's illegality reason, passed through to callers
	// unchanged. Set only when Verdict == Illegal.
	Reason string
}

// Capture describes the piece removed by a capturing move.
type Capture struct {
	Piece Piece
	// WasPromoted is true if the captured piece started life as a pawn.
	WasPromoted bool
}

// Engine is a single board's rule engine. Implementations are assumed
// CPU-bound and non-blocking; the coordinator calls them synchronously from
// its actor loop.
type Engine interface {
	// Move applies a move in coordinate notation (e.g. "e2e4", "e7e8q").
	Move(notation string) MoveResult
	// DropMove places piece from the mover's reserve onto square.
	// Reserve availability is part of drop legality.
	DropMove(piece Piece, square string) MoveResult
	// CaptureInfo reports what a move from->to would capture, before the
	// move is applied. ok is false for non-capturing moves.
	CaptureInfo(from, to string) (cap Capture, ok bool)
	// CreditReserve adds piece to color's droppable reserve on this board.
	CreditReserve(color Color, piece Piece)
	// PositionSnapshot returns the board's piece placement string,
	// including reserves, suitable for replay and bot consumption.
	PositionSnapshot() string
	// ReservesSnapshot returns per-color droppable piece counts.
	ReservesSnapshot() map[Color]map[Piece]int
	// LegalTargets lists the squares color may move the piece on square to.
	LegalTargets(square string, color Color) ([]string, error)
}

// Factory constructs a fresh Engine for one board of a new game.
type Factory func(mode string) (Engine, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a Factory for a game mode. Engine implementations
// register themselves at init time; the server refuses to create sessions
// for modes with no registered factory.
func Register(mode string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[mode] = f
}

// New constructs an Engine for mode using the registered factory.
func New(mode string) (Engine, error) {
	factoryMu.RLock()
	f, ok := factories[mode]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no rule engine registered for mode %q (registered: %v)", mode, Modes())
	}
	return f(mode)
}

// Modes returns the registered mode names, sorted.
func Modes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for m := range factories {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
