// Package broker defines the interface for message brokers and provides implementations.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Broker abstracts message publishing and consumption.
// This interface supports both in-memory (local) and distributed (Redpanda/Kafka) implementations.
// A single Broker is safe for concurrent use by producers and every consumer group.
type Broker interface {
	// Publish appends a message to a topic with an optional key for partitioning.
	// It returns once the broker has acknowledged the write.
	Publish(ctx context.Context, topic string, key string, value []byte) (PublishResult, error)

	// PublishWithHeaders is Publish with record headers attached.
	PublishWithHeaders(ctx context.Context, topic string, key string, value []byte, headers map[string]string) (PublishResult, error)

	// Subscribe attaches groupID to topic. Delivery resumes from the group's
	// committed offsets, or from start when the group has none.
	Subscribe(ctx context.Context, topic string, groupID string, start StartPolicy) (Subscription, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Subscription is one consumer group's lazy view of a topic.
type Subscription interface {
	// Messages returns the stream of unread messages for the group. It blocks
	// while nothing new is available and is closed when the subscription ends.
	Messages() <-chan Message

	// Commit records that msg was fully handled; the group's next read on
	// that partition starts at msg.Offset+1.
	Commit(ctx context.Context, msg Message) error

	// Seek repositions the group's read cursor on partition to offset.
	// Seeks are only guaranteed before Messages is first called; the
	// Redpanda implementation returns ErrSeekAfterStart after that.
	Seek(partition int32, offset int64) error

	// Close detaches the group. Committed offsets are kept.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Offset    int64
	Partition int32
	Timestamp int64

	leaderEpoch int32
}

// PublishResult is the broker acknowledgment of a publish.
type PublishResult struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (r PublishResult) String() string {
	return fmt.Sprintf("%s[%d]@%d", r.Topic, r.Partition, r.Offset)
}

// StartPolicy selects where a group without committed offsets begins reading.
type StartPolicy string

const (
	StartEarliest StartPolicy = "earliest"
	StartLatest   StartPolicy = "latest"
)

// ParseStartPolicy parses "earliest" or "latest". Empty defaults to earliest.
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch StartPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StartEarliest:
		return StartEarliest, nil
	case StartLatest:
		return StartLatest, nil
	default:
		return "", fmt.Errorf("unknown start policy %q (want earliest or latest)", s)
	}
}

// PublishJSON encodes v as JSON and publishes it.
func PublishJSON(ctx context.Context, b Broker, topic string, key string, v any) (PublishResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return PublishResult{}, &PublishError{Kind: SerializationError, Topic: topic, Err: err}
	}
	return b.Publish(ctx, topic, key, data)
}

func validateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return &PublishError{Kind: SerializationError, Topic: topic, Err: ErrEmptyTopic}
	}
	return nil
}
