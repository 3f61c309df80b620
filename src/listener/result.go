// Package listener binds consumer groups to their message handlers.
package listener

import (
	"context"
	"errors"
	"fmt"

	"kafka-relay/src/broker"
)

// Handler processes one message for one consumer group. A nil error means
// the message was handled. Use Retryable or Fatal to classify failures;
// any other error is treated as retryable.
//
// Handlers may see the same message more than once and must tolerate it.
type Handler func(ctx context.Context, msg broker.Message) error

// Kind classifies a handler outcome.
type Kind int

const (
	Ok Kind = iota
	RetryableKind
	FatalKind
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case RetryableKind:
		return "retryable"
	case FatalKind:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is a classified handler outcome.
type Result struct {
	Kind   Kind
	Reason string
}

// HandlerError carries a failure classification.
type HandlerError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Retryable reports a failure that may succeed on redelivery.
func Retryable(reason string) error {
	return &HandlerError{Kind: RetryableKind, Reason: reason}
}

// Fatal reports a failure that redelivery cannot fix.
func Fatal(reason string) error {
	return &HandlerError{Kind: FatalKind, Reason: reason}
}

// AsFatal wraps err as a fatal failure.
func AsFatal(reason string, err error) error {
	return &HandlerError{Kind: FatalKind, Reason: reason, Err: err}
}

// Classify converts a handler return value into a Result.
func Classify(err error) Result {
	if err == nil {
		return Result{Kind: Ok}
	}

	var he *HandlerError
	if errors.As(err, &he) {
		reason := he.Reason
		if he.Err != nil {
			reason = fmt.Sprintf("%s: %v", he.Reason, he.Err)
		}
		return Result{Kind: he.Kind, Reason: reason}
	}

	return Result{Kind: RetryableKind, Reason: err.Error()}
}
