// internal/game/session.go
package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vcsawant/bughouse-sub000/internal/cache"
	"github.com/vcsawant/bughouse-sub000/internal/database"
	"github.com/vcsawant/bughouse-sub000/internal/models"
	"github.com/vcsawant/bughouse-sub000/internal/rules"
)

// EventType represents the type of a session event broadcast to observers.
type EventType string

const (
	// EventStateUpdate: the session state changed; snapshot attached.
	EventStateUpdate EventType = "state_update"
	// EventGameOver: the terminal Result was set; final snapshot attached.
	EventGameOver EventType = "game_over"
)

// Event is the structure broadcast to observers on every state change.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot *Snapshot `json:"snapshot"`
}

// OnGameEndFunc is executed once when a session reaches its terminal
// Result, after persistence has been kicked off.
type OnGameEndFunc func(sessionID uuid.UUID, rec *CompletionRecord)

// seatState is everything owned by one seat: its occupant, clock and
// droppable reserve.
type seatState struct {
	occupant models.Player
	clock    clock
	reserve  Reserve
}

// Session coordinates one bughouse game: two boards, four seats, four
// clocks, the cross-board reserve economy, outcome resolution and vote
// consensus.
//
// A Session is logically single-threaded. All public operations and all
// internal clock-timeout messages are delivered through one ordered mailbox
// consumed by a single goroutine, so no two mutations ever race. That is
// what makes the cross-board reserve credit and the clock swap safe without
// locks. Rule engine calls are synchronous and CPU-bound.
type Session struct {
	id        uuid.UUID
	mode      string
	createdAt time.Time

	boards [2]rules.Engine
	seats  [NumSeats]*seatState

	moves    []MoveRecord
	lastMove *MoveRecord
	result   *Result

	resignVotes map[uuid.UUID]struct{}
	drawOffers  map[uuid.UUID]struct{}

	inbox chan func()
	done  chan struct{}
	once  sync.Once

	log *logrus.Entry

	// BroadcastFn sends an event to all observers. It must never block; a
	// slow or absent observer must never stall a move. Assigned before
	// Start.
	BroadcastFn func(ev Event)
	// OnGameEnd is executed when the session finalizes. Assigned before
	// Start.
	OnGameEnd OnGameEndFunc
}

// Config carries everything needed to construct a Session. Occupants are
// assigned before the session starts and are fixed for its lifetime.
type Config struct {
	ID      uuid.UUID
	Mode    string
	ClockMs int64
	Seats   [NumSeats]models.Player
	Factory rules.Factory
}

// NewSession constructs a session and launches its actor loop. Clocks do
// not run until Start.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("session: rule engine factory is required")
	}
	if cfg.ClockMs <= 0 {
		return nil, fmt.Errorf("session: clock budget must be positive, got %d", cfg.ClockMs)
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	for i := Seat(0); i < NumSeats; i++ {
		if cfg.Seats[i].ID == uuid.Nil {
			return nil, fmt.Errorf("session: seat %s has no occupant", i)
		}
	}

	s := &Session{
		id:          cfg.ID,
		mode:        cfg.Mode,
		createdAt:   time.Now(),
		resignVotes: make(map[uuid.UUID]struct{}),
		drawOffers:  make(map[uuid.UUID]struct{}),
		inbox:       make(chan func(), 64),
		done:        make(chan struct{}),
		log:         logrus.WithField("session", cfg.ID),
	}
	for b := 0; b < 2; b++ {
		eng, err := cfg.Factory(cfg.Mode)
		if err != nil {
			return nil, fmt.Errorf("session: creating board %d engine: %w", b+1, err)
		}
		s.boards[b] = eng
	}
	for i := Seat(0); i < NumSeats; i++ {
		s.seats[i] = &seatState{
			occupant: cfg.Seats[i],
			clock:    clock{remainingMs: cfg.ClockMs},
		}
	}

	go s.run()
	return s, nil
}

// ID returns the session's identity.
func (s *Session) ID() uuid.UUID { return s.id }

// run consumes the mailbox until Close. Every mutation of session state
// happens on this goroutine.
func (s *Session) run() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// enqueue delivers fn to the actor loop, dropping it if the session has
// been torn down. Clock timeouts arriving after teardown land here and are
// no-ops.
func (s *Session) enqueue(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// call runs fn on the actor loop and waits for its result.
func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.inbox <- func() { errc <- fn() }:
	case <-s.done:
		return ErrGameOver
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrGameOver
	}
}

// Start begins play: white's clock starts on both boards and the initial
// state is broadcast.
func (s *Session) Start() {
	s.enqueue(func() {
		if s.result != nil || len(s.activeSeats()) > 0 {
			return
		}
		now := time.Now()
		s.startClock(SeatBoard1White, now)
		s.startClock(SeatBoard2White, now)
		s.log.WithField("mode", s.mode).Info("session started")
		s.broadcastState()
	})
}

// Close tears the actor down: outstanding timers are cancelled, and if no
// Result was recorded a best-effort partial-state persistence is attempted.
// Any timeout message that still arrives afterward is discarded.
func (s *Session) Close() {
	s.once.Do(func() {
		stopped := make(chan struct{})
		s.enqueue(func() {
			now := time.Now()
			for i := Seat(0); i < NumSeats; i++ {
				s.stopClock(i, now)
			}
			if s.result == nil {
				s.persistPartial()
			}
			close(stopped)
		})
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			s.log.Warn("session teardown timed out waiting for actor")
		}
		close(s.done)
	})
}

// --- Public operations -----------------------------------------------------

// MakeMove submits a move in coordinate notation for player. seatHint must
// be supplied by callers controlling dual-seat occupants.
func (s *Session) MakeMove(playerID uuid.UUID, notation string, seatHint *Seat) error {
	return s.call(func() error { return s.makeMove(playerID, notation, seatHint) })
}

// DropPiece places a reserve piece onto square as player's turn.
func (s *Session) DropPiece(playerID uuid.UUID, piece rules.Piece, square string, seatHint *Seat) error {
	return s.call(func() error { return s.dropPiece(playerID, piece, square, seatHint) })
}

// Resign casts player's resignation vote.
func (s *Session) Resign(playerID uuid.UUID) error {
	return s.call(func() error { return s.resign(playerID) })
}

// OfferDraw casts player's draw offer.
func (s *Session) OfferDraw(playerID uuid.UUID) error {
	return s.call(func() error { return s.offerDraw(playerID) })
}

// CanSelect returns the legal target squares for player's piece on square.
func (s *Session) CanSelect(playerID uuid.UUID, square string, seatHint *Seat) ([]string, error) {
	var targets []string
	err := s.call(func() error {
		var err error
		targets, err = s.canSelect(playerID, square, seatHint)
		return err
	})
	return targets, err
}

// QueryState returns a read-only snapshot of the session.
func (s *Session) QueryState() (Snapshot, error) {
	var snap Snapshot
	err := s.call(func() error {
		snap = s.snapshot(time.Now())
		return nil
	})
	return snap, err
}

// QueryRawPosition returns both boards' raw position strings plus
// elapsed-corrected clocks, for consumption by an external engine adapter.
func (s *Session) QueryRawPosition() (RawPosition, error) {
	var raw RawPosition
	err := s.call(func() error {
		raw = RawPosition{
			Board1: s.boards[0].PositionSnapshot(),
			Board2: s.boards[1].PositionSnapshot(),
			Clocks: s.clocksSnapshot(time.Now()),
		}
		return nil
	})
	return raw, err
}

// --- Seat resolution -------------------------------------------------------

// resolveSeat maps a player to the seat they are acting from. A hint is
// accepted only if its occupant matches; without a hint, resolution needs a
// unique seat, so a dual-seat occupant without a hint is ambiguous and fails.
func (s *Session) resolveSeat(playerID uuid.UUID, hint *Seat) (Seat, error) {
	if hint != nil {
		if *hint >= NumSeats || s.seats[*hint].occupant.ID != playerID {
			return 0, ErrNotYourTurn
		}
		return *hint, nil
	}
	found := Seat(0)
	count := 0
	for i := Seat(0); i < NumSeats; i++ {
		if s.seats[i].occupant.ID == playerID {
			found = i
			count++
		}
	}
	switch count {
	case 0:
		return 0, ErrNotInGame
	case 1:
		return found, nil
	default:
		// Dual-seat occupant with no hint: ambiguous.
		return 0, ErrNotYourTurn
	}
}

// resolveActiveSeat resolves the seat and additionally requires its clock
// to be running (it is the seat's turn).
func (s *Session) resolveActiveSeat(playerID uuid.UUID, hint *Seat) (Seat, error) {
	seat, err := s.resolveSeat(playerID, hint)
	if err != nil {
		return 0, err
	}
	if !s.seats[seat].clock.active() {
		return 0, ErrNotYourTurn
	}
	return seat, nil
}

// --- Move and drop ---------------------------------------------------------

// makeMove runs the fixed move pipeline: resolve seat, query capture info
// pre-mutation, submit to the rule engine, credit reserves, append history,
// clear votes, then either swap this board's clocks or finalize.
func (s *Session) makeMove(playerID uuid.UUID, notation string, hint *Seat) error {
	if s.result != nil {
		return ErrGameOver
	}
	seat, err := s.resolveActiveSeat(playerID, hint)
	if err != nil {
		return err
	}
	board := s.boards[seat.BoardIndex()]

	// Capture info must be read before the move mutates the board;
	// post-move state cannot answer "what was captured".
	var capture rules.Capture
	captured := false
	if from, to, ok := parseSquares(notation); ok {
		capture, captured = board.CaptureInfo(from, to)
	} else {
		s.log.WithField("notation", notation).Warn("unparseable move squares; skipping capture query")
	}

	res := board.Move(notation)
	if res.Verdict == rules.Illegal {
		return &IllegalMoveError{Reason: res.Reason}
	}

	now := time.Now()
	if captured {
		s.creditCapture(seat, capture)
	}
	s.appendMove(seat, MoveKindMove, notation, now)
	s.clearVotes(playerID)

	if res.Verdict == rules.Terminal {
		s.finalizeBoardResult(seat.BoardIndex(), res, now)
		return nil
	}

	// Clock swap stays on this board; the other board is untouched.
	s.stopClock(seat, now)
	s.startClock(seat.Opposite(), now)
	s.broadcastState()
	return nil
}

// dropPiece mirrors makeMove for reserve drops. There is no capture credit:
// the piece leaves the dropper's reserve, validated by the rule engine as
// part of drop legality.
func (s *Session) dropPiece(playerID uuid.UUID, piece rules.Piece, square string, hint *Seat) error {
	if s.result != nil {
		return ErrGameOver
	}
	seat, err := s.resolveActiveSeat(playerID, hint)
	if err != nil {
		return err
	}
	board := s.boards[seat.BoardIndex()]

	res := board.DropMove(piece, square)
	if res.Verdict == rules.Illegal {
		return &IllegalMoveError{Reason: res.Reason}
	}

	now := time.Now()
	s.debitDrop(seat, piece)
	s.appendMove(seat, MoveKindDrop, dropNotation(piece, square), now)
	s.clearVotes(playerID)

	if res.Verdict == rules.Terminal {
		s.finalizeBoardResult(seat.BoardIndex(), res, now)
		return nil
	}

	s.stopClock(seat, now)
	s.startClock(seat.Opposite(), now)
	s.broadcastState()
	return nil
}

// canSelect returns the rule engine's legal targets for the piece on
// square, for the seat the player is acting from.
func (s *Session) canSelect(playerID uuid.UUID, square string, hint *Seat) ([]string, error) {
	if s.result != nil {
		return nil, ErrGameOver
	}
	seat, err := s.resolveActiveSeat(playerID, hint)
	if err != nil {
		return nil, err
	}
	return s.boards[seat.BoardIndex()].LegalTargets(square, seat.Color())
}

// --- Finalization ----------------------------------------------------------

// finalizeBoardResult maps a per-board terminal verdict onto the global
// Result. The board-to-team mapping is crossed because teams are diagonal.
func (s *Session) finalizeBoardResult(boardIdx int, res rules.MoveResult, now time.Time) {
	reason := Reason(res.Kind)
	s.finalize(Result{
		Winner: teamForBoardWinner(boardIdx, res.Winner),
		Reason: reason,
		Details: map[string]interface{}{
			"board":  boardIdx + 1,
			"winner": res.Winner.String(),
		},
		Timestamp: now,
	})
}

// finalize records the terminal Result, empties the active-clock set,
// persists the completion record and broadcasts game over. The session is
// immutable afterwards; remaining mailbox traffic no-ops on result != nil.
func (s *Session) finalize(result Result) {
	if s.result != nil {
		s.log.Warn("finalize called with result already set; ignoring")
		return
	}
	s.result = &result
	now := time.Now()
	for i := Seat(0); i < NumSeats; i++ {
		s.stopClock(i, now)
	}

	s.log.WithFields(logrus.Fields{
		"winner": result.Winner.String(),
		"reason": string(result.Reason),
	}).Info("session finalized")

	rec := s.completionRecord()
	s.persistCompletion(rec)
	s.broadcastGameOver()

	if s.OnGameEnd != nil {
		s.OnGameEnd(s.id, rec)
	}
}

// --- Broadcast and persistence glue ---------------------------------------

// broadcastState emits one state_update event. Broadcasting is
// fire-and-forget; the callback must not block.
func (s *Session) broadcastState() {
	if s.BroadcastFn == nil {
		return
	}
	snap := s.snapshot(time.Now())
	s.BroadcastFn(Event{Type: EventStateUpdate, Snapshot: &snap})
}

// broadcastGameOver emits the terminal game_over event.
func (s *Session) broadcastGameOver() {
	if s.BroadcastFn == nil {
		return
	}
	snap := s.snapshot(time.Now())
	s.BroadcastFn(Event{Type: EventGameOver, Snapshot: &snap})
}

// journalMove publishes a move record to the redis journal asynchronously.
// Journal failures are logged, never surfaced to the mover.
func (s *Session) journalMove(rec MoveRecord) {
	if cache.Rdb == nil {
		return
	}
	entry := cache.MoveJournalEntry{
		SessionID: s.id,
		Index:     len(s.moves),
		Seat:      rec.Seat,
		Kind:      string(rec.Kind),
		Notation:  rec.Notation,
		ElapsedMs: rec.ElapsedMs,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishMoveRecord(ctx, entry); err != nil {
			s.log.WithError(err).Error("failed publishing move record to journal")
		}
	}()
}

// persistCompletion hands the completion record to the persistence sink.
func (s *Session) persistCompletion(rec *CompletionRecord) {
	if database.DB == nil {
		return
	}
	id := s.id
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.StoreCompletionRecord(ctx, id, rec); err != nil {
			logrus.WithError(err).WithField("session", id).Error("failed storing completion record")
		}
	}()
}

// persistPartial attempts a best-effort partial-state write for a session
// torn down before any Result. Completeness is not guaranteed.
func (s *Session) persistPartial() {
	if database.DB == nil {
		return
	}
	id := s.id
	snap := s.snapshot(time.Now())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.UpsertPartialState(ctx, id, snap); err != nil {
			logrus.WithError(err).WithField("session", id).Warn("failed storing partial session state")
		}
	}()
}

// --- Notation helpers ------------------------------------------------------

// parseSquares extracts the from/to squares out of coordinate notation
// ("e2e4", "e7e8q").
func parseSquares(notation string) (from, to string, ok bool) {
	if len(notation) < 4 {
		return "", "", false
	}
	from, to = notation[0:2], notation[2:4]
	if !validSquare(from) || !validSquare(to) {
		return "", "", false
	}
	return from, to, true
}

func validSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}

var dropInitials = map[rules.Piece]string{
	rules.Pawn:   "P",
	rules.Knight: "N",
	rules.Bishop: "B",
	rules.Rook:   "R",
	rules.Queen:  "Q",
}

// dropNotation renders a drop in crazyhouse-style notation, e.g. "N@f3".
func dropNotation(piece rules.Piece, square string) string {
	initial, ok := dropInitials[piece]
	if !ok {
		initial = "?"
	}
	return strings.Join([]string{initial, square}, "@")
}
