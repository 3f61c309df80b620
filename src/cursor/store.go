// Package cursor persists consumer group read positions outside the broker.
package cursor

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a group's read position on one partition. Offset is the next
// offset the group will read, so the last completed message is Offset-1.
type Cursor struct {
	GroupID   string `json:"group_id"`
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
}

func (c Cursor) validate() error {
	if c.GroupID == "" || c.Topic == "" {
		return fmt.Errorf("%w: group and topic are required", ErrInvalidCursor)
	}
	if c.Partition < 0 || c.Offset < 0 {
		return fmt.Errorf("%w: negative partition or offset", ErrInvalidCursor)
	}
	return nil
}

// Store defines the interface for persisting consumer group cursors.
type Store interface {
	// Load returns every stored cursor of groupID on topic.
	Load(ctx context.Context, groupID string, topic string) ([]Cursor, error)

	// Save records a cursor. A cursor never moves backwards; saving an
	// offset lower than the stored one is a no-op.
	Save(ctx context.Context, c Cursor) error

	// Close closes the store connection
	Close() error
}
