// Package models holds the shared player model used across the service.
package models

import "github.com/google/uuid"

// Player is a seat occupant. Occupants are assigned before a session starts
// and never change for the session's lifetime.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	// IsBot marks an automated occupant. Bots are excluded from resign and
	// draw quorums entirely.
	IsBot bool `json:"isBot"`
}
