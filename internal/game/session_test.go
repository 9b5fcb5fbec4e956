// internal/game/session_test.go
package game

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsawant/bughouse-sub000/internal/models"
	"github.com/vcsawant/bughouse-sub000/internal/rules"
)

// stubEngine is a scriptable rule engine for one board. Unscripted moves
// continue; unscripted squares capture nothing.
type stubEngine struct {
	mu          sync.Mutex
	moveResults map[string]rules.MoveResult
	dropResults map[string]rules.MoveResult
	captures    map[string]rules.Capture
	credits     []string
	movesSeen   []string
	position    string
	targets     []string
}

func newStubEngine(position string) *stubEngine {
	return &stubEngine{
		moveResults: make(map[string]rules.MoveResult),
		dropResults: make(map[string]rules.MoveResult),
		captures:    make(map[string]rules.Capture),
		position:    position,
		targets:     []string{"e4"},
	}
}

func dropKey(piece rules.Piece, square string) string {
	return piece.String() + "@" + square
}

func (e *stubEngine) Move(notation string) rules.MoveResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.movesSeen = append(e.movesSeen, notation)
	if r, ok := e.moveResults[notation]; ok {
		return r
	}
	return rules.MoveResult{Verdict: rules.Continue}
}

func (e *stubEngine) DropMove(piece rules.Piece, square string) rules.MoveResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.movesSeen = append(e.movesSeen, dropKey(piece, square))
	if r, ok := e.dropResults[dropKey(piece, square)]; ok {
		return r
	}
	return rules.MoveResult{Verdict: rules.Continue}
}

func (e *stubEngine) CaptureInfo(from, to string) (rules.Capture, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.captures[from+to]
	return c, ok
}

func (e *stubEngine) CreditReserve(color rules.Color, piece rules.Piece) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.credits = append(e.credits, color.String()+":"+piece.String())
}

func (e *stubEngine) PositionSnapshot() string { return e.position }

func (e *stubEngine) ReservesSnapshot() map[rules.Color]map[rules.Piece]int {
	return map[rules.Color]map[rules.Piece]int{}
}

func (e *stubEngine) LegalTargets(square string, color rules.Color) ([]string, error) {
	return e.targets, nil
}

func (e *stubEngine) seenMoves() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.movesSeen))
	copy(out, e.movesSeen)
	return out
}

// mockObserver records broadcast events for assertions.
type mockObserver struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockObserver) broadcastFn(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockObserver) findEventByType(t EventType) *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == t {
			return &m.events[i]
		}
	}
	return nil
}

func makePlayer(name string) models.Player {
	return models.Player{ID: uuid.New(), Username: name}
}

// setupTestSession builds a started session with four distinct human
// occupants, two stub boards and a recording observer.
func setupTestSession(t *testing.T, clockMs int64) (*Session, [NumSeats]models.Player, [2]*stubEngine, *mockObserver) {
	t.Helper()

	seats := [NumSeats]models.Player{
		makePlayer("alice"), makePlayer("bob"), makePlayer("carol"), makePlayer("dave"),
	}
	engines := [2]*stubEngine{newStubEngine("pos-board1"), newStubEngine("pos-board2")}
	next := 0
	factory := func(mode string) (rules.Engine, error) {
		e := engines[next]
		next++
		return e, nil
	}

	s, err := NewSession(Config{
		Mode:    "bughouse",
		ClockMs: clockMs,
		Seats:   seats,
		Factory: factory,
	})
	require.NoError(t, err)

	mo := &mockObserver{}
	s.BroadcastFn = mo.broadcastFn
	s.Start()
	t.Cleanup(s.Close)

	// Wait for Start to land on the actor loop.
	snap, err := s.QueryState()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"board1_white", "board2_white"}, snap.ActiveSeats,
		"white should be on the move on both boards at start")

	return s, seats, engines, mo
}

func mustState(t *testing.T, s *Session) Snapshot {
	t.Helper()
	snap, err := s.QueryState()
	require.NoError(t, err)
	return snap
}

// TestNonCapturingMoveSwapsClocks covers the plain move path: the mover's
// clock stops, the same-board opponent's clock starts, and the other board
// is untouched.
func TestNonCapturingMoveSwapsClocks(t *testing.T) {
	s, seats, engines, mo := setupTestSession(t, 60_000)

	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "e2e4", nil))

	snap := mustState(t, s)
	assert.ElementsMatch(t, []string{"board1_black", "board2_white"}, snap.ActiveSeats)
	assert.Equal(t, 1, snap.MoveCount)

	// Board 2 never saw a call and no reserves changed anywhere.
	assert.Empty(t, engines[1].seenMoves())
	for i := Seat(0); i < NumSeats; i++ {
		assert.Equal(t, Reserve{}, snap.Seats[i].Reserve)
	}

	ev := mo.findEventByType(EventStateUpdate)
	require.NotNil(t, ev, "expected a state_update broadcast")
	assert.Equal(t, 1, ev.Snapshot.MoveCount)
}

// TestCaptureCreditsDiagonalPartner covers the cross-board credit table: a
// capture by board1_white feeds board2_black's reserve and that board's
// engine, nothing else.
func TestCaptureCreditsDiagonalPartner(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	engines[0].captures["d4e5"] = rules.Capture{Piece: rules.Knight}
	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "d4e5", nil))

	snap := mustState(t, s)
	assert.Equal(t, 1, snap.Seats[SeatBoard2Black].Reserve.Knight)
	assert.Equal(t, Reserve{}, snap.Seats[SeatBoard1White].Reserve)
	assert.Equal(t, Reserve{}, snap.Seats[SeatBoard1Black].Reserve)
	assert.Equal(t, Reserve{}, snap.Seats[SeatBoard2White].Reserve)

	// The receiving board's engine learned about the new droppable piece.
	assert.Equal(t, []string{"black:knight"}, engines[1].credits)
	assert.Empty(t, engines[0].credits)
}

// TestPromotedCaptureDemotesToPawn: capturing a piece that was promoted
// credits a pawn, never the promoted type.
func TestPromotedCaptureDemotesToPawn(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	engines[0].captures["d7e8"] = rules.Capture{Piece: rules.Queen, WasPromoted: true}
	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "d7e8", nil))

	snap := mustState(t, s)
	assert.Equal(t, 1, snap.Seats[SeatBoard2Black].Reserve.Pawn)
	assert.Equal(t, 0, snap.Seats[SeatBoard2Black].Reserve.Queen)
	assert.Equal(t, []string{"black:pawn"}, engines[1].credits)
}

// TestKingCaptureCreditsNothing: a captured king is discarded.
func TestKingCaptureCreditsNothing(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	engines[0].captures["d6e7"] = rules.Capture{Piece: rules.King}
	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "d6e7", nil))

	snap := mustState(t, s)
	for i := Seat(0); i < NumSeats; i++ {
		assert.Equal(t, Reserve{}, snap.Seats[i].Reserve)
	}
	assert.Empty(t, engines[1].credits)
}

// TestIllegalMovePassesReasonThroughUnchanged verifies the engine's reason
// survives verbatim and nothing mutates.
func TestIllegalMovePassesReasonThroughUnchanged(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	engines[0].moveResults["a1a8"] = rules.MoveResult{Verdict: rules.Illegal, Reason: "path blocked"}
	err := s.MakeMove(seats[SeatBoard1White].ID, "a1a8", nil)

	var illegal *IllegalMoveError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "path blocked", illegal.Reason)

	snap := mustState(t, s)
	assert.Zero(t, snap.MoveCount, "illegal move must not reach the history")
	assert.ElementsMatch(t, []string{"board1_white", "board2_white"}, snap.ActiveSeats,
		"clocks must not swap on an illegal move")
}

// TestTurnGuards covers not_your_turn and not_in_game resolution failures.
func TestTurnGuards(t *testing.T) {
	s, seats, _, _ := setupTestSession(t, 60_000)

	// Black is not on the move yet.
	err := s.MakeMove(seats[SeatBoard1Black].ID, "e7e5", nil)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	// Unknown player occupies no seat.
	err = s.MakeMove(uuid.New(), "e2e4", nil)
	assert.ErrorIs(t, err, ErrNotInGame)

	// A hint naming a seat the player does not occupy fails.
	hint := SeatBoard1White
	err = s.MakeMove(seats[SeatBoard1Black].ID, "e2e4", &hint)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	snap := mustState(t, s)
	assert.Zero(t, snap.MoveCount)
}

// TestDualSeatOccupantNeedsHint: one occupant in two seats is ambiguous
// without a hint and resolvable with one.
func TestDualSeatOccupantNeedsHint(t *testing.T) {
	shared := makePlayer("engine-bot")
	shared.IsBot = true
	seats := [NumSeats]models.Player{
		shared, makePlayer("bob"), shared, makePlayer("dave"),
	}
	engines := [2]*stubEngine{newStubEngine("p1"), newStubEngine("p2")}
	next := 0
	s, err := NewSession(Config{
		Mode:    "bughouse",
		ClockMs: 60_000,
		Seats:   seats,
		Factory: func(string) (rules.Engine, error) { e := engines[next]; next++; return e, nil },
	})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(s.Close)

	err = s.MakeMove(shared.ID, "e2e4", nil)
	assert.ErrorIs(t, err, ErrNotYourTurn, "dual-seat occupant without hint is ambiguous")

	hint := SeatBoard2White
	require.NoError(t, s.MakeMove(shared.ID, "d2d4", &hint))

	snap := mustState(t, s)
	assert.ElementsMatch(t, []string{"board1_white", "board2_black"}, snap.ActiveSeats)
	assert.Equal(t, []string{"d2d4"}, engines[1].seenMoves())
	assert.Empty(t, engines[0].seenMoves())
}

// TestDropConsumesReserve covers the drop path end to end: capture feeds
// the partner, the partner drops, the ledger debits.
func TestDropConsumesReserve(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	// board1_white captures a knight; board2_black receives it.
	engines[0].captures["d4e5"] = rules.Capture{Piece: rules.Knight}
	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "d4e5", nil))

	// board2_white moves so board2_black comes on the move.
	require.NoError(t, s.MakeMove(seats[SeatBoard2White].ID, "e2e4", nil))

	require.NoError(t, s.DropPiece(seats[SeatBoard2Black].ID, rules.Knight, "f6", nil))

	snap := mustState(t, s)
	assert.Equal(t, 0, snap.Seats[SeatBoard2Black].Reserve.Knight)
	assert.ElementsMatch(t, []string{"board1_black", "board2_white"}, snap.ActiveSeats)

	require.NotNil(t, snap.LastMove)
	assert.Equal(t, MoveKindDrop, snap.LastMove.Kind)
	assert.Equal(t, "N@f6", snap.LastMove.Notation)
	assert.Equal(t, 2, snap.LastMove.Board)
}

// TestTerminalMoveMapsBoardWinnerToTeam checks the crossed board-to-team
// mapping for both boards.
func TestTerminalMoveMapsBoardWinnerToTeam(t *testing.T) {
	cases := []struct {
		name   string
		mover  Seat
		winner rules.Color
		want   Team
	}{
		{"board1 white win is team_1", SeatBoard1White, rules.White, Team1},
		{"board2 white win is team_2", SeatBoard2White, rules.White, Team2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, seats, engines, mo := setupTestSession(t, 60_000)

			engines[tc.mover.BoardIndex()].moveResults["h5f7"] = rules.MoveResult{
				Verdict: rules.Terminal,
				Kind:    "checkmate",
				Winner:  tc.winner,
			}
			require.NoError(t, s.MakeMove(seats[tc.mover].ID, "h5f7", nil))

			snap := mustState(t, s)
			require.NotNil(t, snap.Result)
			assert.Equal(t, tc.want, snap.Result.Winner)
			assert.Equal(t, ReasonCheckmate, snap.Result.Reason)
			assert.Empty(t, snap.ActiveSeats, "active set must empty on terminal result")

			// Session is immutable now.
			err := s.MakeMove(seats[SeatBoard1White].ID, "e2e4", nil)
			assert.ErrorIs(t, err, ErrGameOver)

			over := mo.findEventByType(EventGameOver)
			require.NotNil(t, over)
			require.NotNil(t, over.Snapshot.Result)
		})
	}
}

// TestGameEndCompletionRecord verifies the persistence-sink record shape.
func TestGameEndCompletionRecord(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	done := make(chan *CompletionRecord, 1)
	s.OnGameEnd = func(id uuid.UUID, rec *CompletionRecord) {
		assert.Equal(t, s.ID(), id)
		done <- rec
	}

	engines[0].captures["d4e5"] = rules.Capture{Piece: rules.Rook}
	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "d4e5", nil))

	engines[0].moveResults["g2g1"] = rules.MoveResult{Verdict: rules.Terminal, Kind: "king_captured", Winner: rules.Black}
	require.NoError(t, s.MakeMove(seats[SeatBoard1Black].ID, "g2g1", nil))

	rec := <-done
	assert.Equal(t, ReasonKingCaptured, rec.Result.Reason)
	assert.Equal(t, Team2, rec.Result.Winner, "black winning board 1 is a team_2 win")
	assert.Len(t, rec.Moves, 2)
	assert.Equal(t, [2]string{"pos-board1", "pos-board2"}, rec.FinalPositions)
	assert.Equal(t, 1, rec.FinalReserves[SeatBoard2Black].Rook)

	assert.Equal(t, OutcomeLoss, rec.Outcomes[seats[SeatBoard1White].ID])
	assert.Equal(t, OutcomeWin, rec.Outcomes[seats[SeatBoard1Black].ID])
	assert.Equal(t, OutcomeWin, rec.Outcomes[seats[SeatBoard2White].ID])
	assert.Equal(t, OutcomeLoss, rec.Outcomes[seats[SeatBoard2Black].ID])
}

// TestMoveRecordSnapshotsState verifies each history entry carries the full
// replay snapshot.
func TestMoveRecordSnapshotsState(t *testing.T) {
	s, seats, _, _ := setupTestSession(t, 60_000)

	require.NoError(t, s.MakeMove(seats[SeatBoard1White].ID, "e2e4", nil))

	snap := mustState(t, s)
	require.NotNil(t, snap.LastMove)
	rec := snap.LastMove
	assert.Equal(t, 1, rec.Board)
	assert.Equal(t, "board1_white", rec.Seat)
	assert.Equal(t, MoveKindMove, rec.Kind)
	assert.Equal(t, "e2e4", rec.Notation)
	assert.Equal(t, [2]string{"pos-board1", "pos-board2"}, rec.Positions)
	assert.NotEqual(t, uuid.Nil, rec.ID)
	for i := Seat(0); i < NumSeats; i++ {
		assert.LessOrEqual(t, rec.Clocks[i], int64(60_000))
		assert.Greater(t, rec.Clocks[i], int64(0))
	}
}

// TestCanSelectReturnsEngineTargets covers the selection preview path.
func TestCanSelectReturnsEngineTargets(t *testing.T) {
	s, seats, engines, _ := setupTestSession(t, 60_000)

	engines[0].targets = []string{"e3", "e4"}
	targets, err := s.CanSelect(seats[SeatBoard1White].ID, "e2", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"e3", "e4"}, targets)

	// Off-turn seats cannot select.
	_, err = s.CanSelect(seats[SeatBoard1Black].ID, "e7", nil)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

// TestQueryRawPosition covers the bot query view.
func TestQueryRawPosition(t *testing.T) {
	s, _, _, _ := setupTestSession(t, 60_000)

	raw, err := s.QueryRawPosition()
	require.NoError(t, err)
	assert.Equal(t, "pos-board1", raw.Board1)
	assert.Equal(t, "pos-board2", raw.Board2)
	for i := 0; i < NumSeats; i++ {
		assert.Greater(t, raw.Clocks[i], int64(0))
	}
}

// TestClosedSessionRejectsOperations: after Close, public operations fail
// with game_over instead of hanging.
func TestClosedSessionRejectsOperations(t *testing.T) {
	s, seats, _, _ := setupTestSession(t, 60_000)
	s.Close()

	err := s.MakeMove(seats[SeatBoard1White].ID, "e2e4", nil)
	assert.ErrorIs(t, err, ErrGameOver)
	_, err = s.QueryState()
	assert.ErrorIs(t, err, ErrGameOver)
}

// TestNewSessionValidation rejects incomplete configurations.
func TestNewSessionValidation(t *testing.T) {
	factory := func(string) (rules.Engine, error) { return newStubEngine("p"), nil }
	seats := [NumSeats]models.Player{
		makePlayer("a"), makePlayer("b"), makePlayer("c"), makePlayer("d"),
	}

	_, err := NewSession(Config{ClockMs: 1000, Seats: seats})
	assert.Error(t, err, "factory is required")

	_, err = NewSession(Config{ClockMs: 0, Seats: seats, Factory: factory})
	assert.Error(t, err, "clock budget must be positive")

	empty := seats
	empty[SeatBoard2Black] = models.Player{}
	_, err = NewSession(Config{ClockMs: 1000, Seats: empty, Factory: factory})
	assert.Error(t, err, "all seats need occupants")
}

func TestIllegalErrorMessage(t *testing.T) {
	err := &IllegalMoveError{Reason: "king in check"}
	assert.Equal(t, "illegal move: king in check", err.Error())
	assert.False(t, errors.Is(err, ErrGameOver))
}
