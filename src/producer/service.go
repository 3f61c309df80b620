// Package producer accepts payloads from callers and publishes them to a topic.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"kafka-relay/src/broker"
	"kafka-relay/src/logger"
	"kafka-relay/src/metrics"
	"kafka-relay/src/sanitize"
)

// ErrorKind classifies producer failures.
type ErrorKind int

const (
	// UpstreamUnavailable means the payload could not be handed to the broker.
	UpstreamUnavailable ErrorKind = iota
)

func (k ErrorKind) String() string {
	switch k {
	case UpstreamUnavailable:
		return "upstream unavailable"
	default:
		return "unknown"
	}
}

// ProducerError is returned by Accept when a payload was not published.
type ProducerError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}

// IsUpstreamUnavailable reports whether err is a ProducerError of kind UpstreamUnavailable.
func IsUpstreamUnavailable(err error) bool {
	var pe *ProducerError
	return errors.As(err, &pe) && pe.Kind == UpstreamUnavailable
}

// Config holds the settings of a Service.
type Config struct {
	Topic string
	// Delay is waited before every publish. Zero disables it.
	Delay time.Duration
	// BreakerThreshold is the number of consecutive publish failures that
	// opens the circuit. Zero disables the breaker.
	BreakerThreshold int
	// BreakerTimeout is how long the circuit stays open before a probe.
	BreakerTimeout time.Duration
}

const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// DefaultConfig returns the settings used for topic.
func DefaultConfig(topic string) Config {
	return Config{
		Topic:            topic,
		BreakerThreshold: defaultBreakerThreshold,
		BreakerTimeout:   defaultBreakerTimeout,
	}
}

// Service publishes payloads to one topic. It does not retry; the caller
// sees a failure as soon as the broker rejects the write.
type Service struct {
	broker  broker.Broker
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

// NewService creates a producer service for cfg.Topic.
func NewService(brk broker.Broker, cfg Config, log logger.Logger) (*Service, error) {
	if brk == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if cfg.Topic == "" {
		return nil, broker.ErrEmptyTopic
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("publish delay must not be negative, got %s", cfg.Delay)
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	s := &Service{
		broker: brk,
		cfg:    cfg,
		logger: log,
	}

	if cfg.BreakerThreshold > 0 {
		timeout := cfg.BreakerTimeout
		if timeout <= 0 {
			timeout = defaultBreakerTimeout
		}
		threshold := uint32(cfg.BreakerThreshold)
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Topic,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Invalid payloads say nothing about broker health.
			IsSuccessful: func(err error) bool {
				return err == nil || broker.IsSerializationError(err) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn("[Producer:%s] Circuit breaker %s -> %s", name, from, to)
			},
		})
	}

	return s, nil
}

// Topic returns the topic the service publishes to.
func (s *Service) Topic() string {
	return s.cfg.Topic
}

// Accept publishes payload under key and returns where it was stored.
func (s *Service) Accept(ctx context.Context, key string, payload []byte) (broker.PublishResult, error) {
	s.logger.Info("[Producer:%s] Received message: %s", s.cfg.Topic, sanitize.Payload(payload))

	if err := s.wait(ctx); err != nil {
		return broker.PublishResult{}, &ProducerError{Kind: UpstreamUnavailable, Err: err}
	}

	res, err := s.publish(ctx, key, payload)
	if err != nil {
		metrics.IncPublishFailure(s.cfg.Topic)
		s.logger.Error("[Producer:%s] Publish failed: %v", s.cfg.Topic, err)
		return broker.PublishResult{}, &ProducerError{Kind: UpstreamUnavailable, Err: err}
	}

	metrics.IncProduced(s.cfg.Topic)
	s.logger.Info("[Producer:%s] Message sent successfully to %s", s.cfg.Topic, res)
	return res, nil
}

func (s *Service) publish(ctx context.Context, key string, payload []byte) (broker.PublishResult, error) {
	if s.breaker == nil {
		return s.broker.Publish(ctx, s.cfg.Topic, key, payload)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.broker.Publish(ctx, s.cfg.Topic, key, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return broker.PublishResult{}, &broker.PublishError{Kind: broker.BrokerUnavailable, Topic: s.cfg.Topic, Err: err}
	}
	if err != nil {
		return broker.PublishResult{}, err
	}
	return out.(broker.PublishResult), nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.cfg.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
