package broker

import (
	"errors"
	"fmt"
)

var (
	ErrBrokerClosed       = errors.New("broker is closed")
	ErrEmptyTopic         = errors.New("topic name is required")
	ErrMessageTooLarge    = errors.New("message exceeds max size")
	ErrAlreadySubscribed  = errors.New("consumer already exists for topic and group")
	ErrUnknownPartition   = errors.New("unknown partition")
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrSeekAfterStart     = errors.New("seek after consumption started")
)

// PublishErrorKind classifies publish failures.
type PublishErrorKind int

const (
	// BrokerUnavailable means the broker could not be reached or did not acknowledge the write.
	BrokerUnavailable PublishErrorKind = iota
	// SerializationError means the payload or record could not be encoded.
	SerializationError
)

func (k PublishErrorKind) String() string {
	switch k {
	case BrokerUnavailable:
		return "broker unavailable"
	case SerializationError:
		return "serialization error"
	default:
		return "unknown"
	}
}

// PublishError is returned by Broker.Publish.
type PublishError struct {
	Kind  PublishErrorKind
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q failed (%s): %v", e.Topic, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsBrokerUnavailable reports whether err is a PublishError of kind BrokerUnavailable.
func IsBrokerUnavailable(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == BrokerUnavailable
}

// IsSerializationError reports whether err is a PublishError of kind SerializationError.
func IsSerializationError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == SerializationError
}
