package listener

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"kafka-relay/src/broker"
)

// Idempotent wraps h so that a message it already handled successfully is
// acknowledged without running h again. The last size message positions
// are remembered. Wrap once per group; the cache is not shared.
func Idempotent(h Handler, size int) (Handler, error) {
	completed, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}

	return func(ctx context.Context, msg broker.Message) error {
		key := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		if completed.Contains(key) {
			return nil
		}
		if err := h(ctx, msg); err != nil {
			return err
		}
		completed.Add(key, struct{}{})
		return nil
	}, nil
}
