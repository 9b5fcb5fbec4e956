package game

import (
	"errors"
	"fmt"
)

// Guard failures returned by the coordinator's public operations. None of
// them mutate state.
var (
	// ErrGameOver: any move, drop or query-for-action after the Result is set.
	ErrGameOver = errors.New("game_over")
	// ErrNotYourTurn: the seat could not be resolved for the player, the
	// seat hint's occupant does not match, or the seat's clock is not
	// running.
	ErrNotYourTurn = errors.New("not_your_turn")
	// ErrNotInGame: the player occupies no seat in this session.
	ErrNotInGame = errors.New("not_in_game")
	// ErrGameAlreadyOver: a resign or draw vote arrived after the Result
	// was set.
	ErrGameAlreadyOver = errors.New("game_already_over")
	// ErrBotVote: an automated occupant attempted to vote. Bot votes are
	// rejected with an error rather than silently ignored.
	ErrBotVote = errors.New("automated occupants cannot vote")
)

// IllegalMoveError carries the rule engine's illegality reason through to
// the caller unchanged.
type IllegalMoveError struct {
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move: %s", e.Reason)
}
