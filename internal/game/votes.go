package game

import (
	"time"

	"github.com/google/uuid"
)

// Voting covers resignation and draw consensus. Only human occupants count:
// automated occupants are excluded from both the numerator and the
// denominator, so a team with one human and one bot can be resigned
// unilaterally by that human.
//
// A player's outstanding votes are implicitly retracted whenever that
// player makes a move or drop (see clearVotes).

// resign records player's resignation vote. When every human occupant of
// one team has voted, the opposing team wins with reason "resignation".
func (s *Session) resign(playerID uuid.UUID) error {
	if s.result != nil {
		return ErrGameAlreadyOver
	}
	if err := s.checkVoter(playerID); err != nil {
		return err
	}
	s.resignVotes[playerID] = struct{}{}
	s.log.WithField("player", playerID).Info("resign vote recorded")

	for _, team := range []Team{Team1, Team2} {
		humans := s.teamHumans(team)
		if len(humans) == 0 || !allVoted(humans, s.resignVotes) {
			continue
		}
		s.finalize(Result{
			Winner: team.Opposing(),
			Reason: ReasonResignation,
			Details: map[string]interface{}{
				"resigned_team": team.String(),
			},
			Timestamp: time.Now(),
		})
		return nil
	}

	// Quorum not reached: tally updated, state re-broadcast, no Result.
	s.broadcastState()
	return nil
}

// offerDraw records player's draw offer. When every human occupant across
// all four seats has offered, the Result becomes a draw by agreement.
func (s *Session) offerDraw(playerID uuid.UUID) error {
	if s.result != nil {
		return ErrGameAlreadyOver
	}
	if err := s.checkVoter(playerID); err != nil {
		return err
	}
	s.drawOffers[playerID] = struct{}{}
	s.log.WithField("player", playerID).Info("draw offer recorded")

	humans := s.allHumans()
	if len(humans) > 0 && allVoted(humans, s.drawOffers) {
		s.finalize(Result{
			Winner:    TeamNone,
			Reason:    ReasonAgreement,
			Timestamp: time.Now(),
		})
		return nil
	}

	s.broadcastState()
	return nil
}

// checkVoter validates that playerID occupies a seat and is human.
func (s *Session) checkVoter(playerID uuid.UUID) error {
	seated := false
	human := false
	for i := Seat(0); i < NumSeats; i++ {
		if s.seats[i].occupant.ID != playerID {
			continue
		}
		seated = true
		if !s.seats[i].occupant.IsBot {
			human = true
		}
	}
	if !seated {
		return ErrNotInGame
	}
	if !human {
		return ErrBotVote
	}
	return nil
}

// clearVotes drops any outstanding votes by playerID. A move is an implicit
// retraction.
func (s *Session) clearVotes(playerID uuid.UUID) {
	delete(s.resignVotes, playerID)
	delete(s.drawOffers, playerID)
}

// teamHumans returns the distinct human occupant ids seated on team.
func (s *Session) teamHumans(team Team) []uuid.UUID {
	return s.humanIDs(func(seat Seat) bool { return seat.Team() == team })
}

// allHumans returns the distinct human occupant ids across all seats.
func (s *Session) allHumans() []uuid.UUID {
	return s.humanIDs(func(Seat) bool { return true })
}

func (s *Session) humanIDs(include func(Seat) bool) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, NumSeats)
	out := make([]uuid.UUID, 0, NumSeats)
	for i := Seat(0); i < NumSeats; i++ {
		p := s.seats[i].occupant
		if p.IsBot || !include(i) {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.ID)
	}
	return out
}

func allVoted(ids []uuid.UUID, votes map[uuid.UUID]struct{}) bool {
	for _, id := range ids {
		if _, ok := votes[id]; !ok {
			return false
		}
	}
	return true
}

// countVoted returns how many of ids appear in votes.
func countVoted(ids []uuid.UUID, votes map[uuid.UUID]struct{}) int {
	n := 0
	for _, id := range ids {
		if _, ok := votes[id]; ok {
			n++
		}
	}
	return n
}
