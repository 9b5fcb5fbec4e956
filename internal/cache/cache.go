// Package cache owns the redis connection and the per-move journal stream.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Rdb is the shared redis client. Nil when redis is not configured; callers
// check before publishing.
var Rdb *redis.Client

// moveJournalKey is the list each session's move records are pushed onto.
func moveJournalKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("bughouse:journal:%s", sessionID)
}

// MoveJournalEntry is one journaled move, ordered by Index within a session.
type MoveJournalEntry struct {
	SessionID uuid.UUID `json:"sessionId"`
	Index     int       `json:"index"`
	Seat      string    `json:"seat"`
	Kind      string    `json:"kind"`
	Notation  string    `json:"notation"`
	ElapsedMs int64     `json:"elapsedMs"`
}

// Connect initializes the shared redis client and verifies connectivity.
func Connect(ctx context.Context, addr, password string) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: pinging redis at %s: %w", addr, err)
	}
	Rdb = client
	logrus.WithField("addr", addr).Info("connected to redis")
	return nil
}

// PublishMoveRecord appends one move to the session's journal list.
func PublishMoveRecord(ctx context.Context, entry MoveJournalEntry) error {
	if Rdb == nil {
		return fmt.Errorf("cache: redis client not initialized")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshaling journal entry: %w", err)
	}
	return Rdb.RPush(ctx, moveJournalKey(entry.SessionID), payload).Err()
}

// MarkSessionComplete caps a session's journal with an expiry so finished
// games age out of redis on their own.
func MarkSessionComplete(ctx context.Context, sessionID uuid.UUID) error {
	if Rdb == nil {
		return fmt.Errorf("cache: redis client not initialized")
	}
	const retention = 24 * 60 * 60 // seconds
	return Rdb.Do(ctx, "EXPIRE", moveJournalKey(sessionID), retention).Err()
}
