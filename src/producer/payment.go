package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kafka-relay/src/broker"
	"kafka-relay/src/contracts"
	"kafka-relay/src/logger"
)

// ErrEmptyMessage is returned for a blank string message.
var ErrEmptyMessage = errors.New("message body is empty")

// PaymentService publishes payments keyed by payment ID.
type PaymentService struct {
	svc *Service
}

// NewPaymentService creates a payment producer on payment-topic.
// cfg.Topic is ignored.
func NewPaymentService(brk broker.Broker, cfg Config, log logger.Logger) (*PaymentService, error) {
	cfg.Topic = contracts.TopicPayments
	svc, err := NewService(brk, cfg, log)
	if err != nil {
		return nil, err
	}
	return &PaymentService{svc: svc}, nil
}

// SendPayment validates and publishes p. The payment ID is the record key,
// so all events of one payment land on the same partition.
func (s *PaymentService) SendPayment(ctx context.Context, p contracts.Payment) (broker.PublishResult, error) {
	if err := p.Validate(); err != nil {
		return broker.PublishResult{}, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return broker.PublishResult{}, fmt.Errorf("%w: %v", contracts.ErrInvalidPayment, err)
	}

	return s.svc.Accept(ctx, p.ID, data)
}

// SendPaymentJSON validates body as a payment and publishes it byte for
// byte, keyed by the payment ID.
func (s *PaymentService) SendPaymentJSON(ctx context.Context, body []byte) (broker.PublishResult, error) {
	p, err := contracts.DecodePayment(body)
	if err != nil {
		return broker.PublishResult{}, err
	}
	return s.svc.Accept(ctx, p.ID, body)
}

// StringService publishes plain text messages without a key.
type StringService struct {
	svc *Service
}

// NewStringService creates a string producer on str-topic.
// cfg.Topic is ignored.
func NewStringService(brk broker.Broker, cfg Config, log logger.Logger) (*StringService, error) {
	cfg.Topic = contracts.TopicStrings
	svc, err := NewService(brk, cfg, log)
	if err != nil {
		return nil, err
	}
	return &StringService{svc: svc}, nil
}

// SendMessage publishes message as-is.
func (s *StringService) SendMessage(ctx context.Context, message string) (broker.PublishResult, error) {
	if strings.TrimSpace(message) == "" {
		return broker.PublishResult{}, ErrEmptyMessage
	}
	return s.svc.Accept(ctx, "", []byte(message))
}
