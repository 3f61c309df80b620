// Package consumer runs consumer groups: one isolated dispatcher per group
// that reads its own cursor, invokes the group's handler and applies the
// group's failure policy.
package consumer

import (
	"fmt"
	"strings"
	"time"

	"kafka-relay/src/broker"
)

// FailurePolicy decides what happens to a message whose handler failed.
// The implementations are DropAndCommit and RetryThenDeadLetter.
type FailurePolicy interface {
	Name() string
	failurePolicy()
}

// DropAndCommit logs the failure and commits the offset anyway
// (at-most-once for the failed message).
type DropAndCommit struct{}

func (DropAndCommit) Name() string  { return "dropAndCommit" }
func (DropAndCommit) failurePolicy() {}

// RetryThenDeadLetter redelivers a retryable failure up to MaxRetries more
// times, so a message is attempted at most MaxRetries+1 times. It is then
// dead-lettered and committed. Fatal failures are dead-lettered at once.
type RetryThenDeadLetter struct {
	MaxRetries int
	// Backoff is the delay before the first redelivery; it doubles on each
	// further redelivery up to MaxBackoff (zero means uncapped).
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (RetryThenDeadLetter) Name() string  { return "retryThenDeadLetter" }
func (RetryThenDeadLetter) failurePolicy() {}

// Delay returns the wait before redelivery number retry (1-based).
func (p RetryThenDeadLetter) Delay(retry int) time.Duration {
	if p.Backoff <= 0 || retry <= 0 {
		return 0
	}
	d := p.Backoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// ParseFailurePolicy builds a policy from its configuration name.
// Accepted names are dropAndCommit and retryThenDeadLetter in any case,
// with or without '-' or '_' separators.
func ParseFailurePolicy(name string, maxRetries int, backoff, maxBackoff time.Duration) (FailurePolicy, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(name)))
	switch normalized {
	case "", "dropandcommit":
		return DropAndCommit{}, nil
	case "retrythendeadletter":
		if maxRetries < 0 {
			return nil, fmt.Errorf("maxRetries must not be negative, got %d", maxRetries)
		}
		return RetryThenDeadLetter{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: maxBackoff}, nil
	default:
		return nil, fmt.Errorf("unknown failure policy %q (want dropAndCommit or retryThenDeadLetter)", name)
	}
}

// GroupConfig describes one consumer group attached to a topic.
type GroupConfig struct {
	GroupID string
	Topic   string
	Start   broker.StartPolicy
	Policy  FailurePolicy
}

func (c GroupConfig) validate() error {
	if c.GroupID == "" {
		return fmt.Errorf("group ID is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("topic is required for group %s", c.GroupID)
	}
	return nil
}
