// Package deadletter stores messages whose processing permanently failed.
package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kafka-relay/src/broker"
)

// Letter is a message that exhausted its group's failure policy.
type Letter struct {
	ID       string
	GroupID  string
	Message  broker.Message
	Reason   string
	Attempts int
	FailedAt time.Time
}

// NewLetter builds a Letter with a fresh ID.
func NewLetter(groupID string, msg broker.Message, reason string, attempts int) Letter {
	return Letter{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		Message:  msg,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
}

// Sink is terminal storage for dead letters.
type Sink interface {
	Send(ctx context.Context, letter Letter) error
}

// Lister is implemented by sinks that can read dead letters back.
type Lister interface {
	// List returns dead letters for groupID, oldest first. An empty groupID
	// lists every group. limit <= 0 means no limit.
	List(ctx context.Context, groupID string, limit int) ([]Letter, error)
}
