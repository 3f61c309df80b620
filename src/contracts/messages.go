// Package contracts defines the message types and topic names shared by producers and consumers.
package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Topic names used by the relay.
const (
	// TopicPayments carries JSON-encoded payments published by the payment server.
	TopicPayments = "payment-topic"

	// TopicStrings carries plain-text messages published by the string producer.
	TopicStrings = "str-topic"

	// DeadLetterSuffix is appended to a topic name to form its dead-letter topic.
	DeadLetterSuffix = ".DLT"
)

// Header keys attached to dead-lettered records.
const (
	HeaderGroup    = "relay-dlt-group"
	HeaderReason   = "relay-dlt-reason"
	HeaderAttempts = "relay-dlt-attempts"
	HeaderOffset   = "relay-dlt-original-offset"
)

var ErrInvalidPayment = errors.New("invalid payment")

// Payment is the payload accepted by POST /payment.
// Published to: payment-topic
// Key: {id}
type Payment struct {
	ID          string  `json:"id"`
	IDUser      string  `json:"id_user,omitempty"`
	IDProduct   string  `json:"id_product,omitempty"`
	CardNumber  string  `json:"card_number,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Validate checks the fields required for publishing.
func (p Payment) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPayment)
	}
	if p.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidPayment)
	}
	return nil
}

// DecodePayment parses a single JSON payment and validates it. Fields the
// Payment type does not know are rejected rather than dropped.
func DecodePayment(data []byte) (Payment, error) {
	var p Payment
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payment{}, fmt.Errorf("%w: unexpected data after payment object", ErrInvalidPayment)
	}
	if err := p.Validate(); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// DeadLetterTopic returns the dead-letter topic for topic.
func DeadLetterTopic(topic string) string {
	return topic + DeadLetterSuffix
}
