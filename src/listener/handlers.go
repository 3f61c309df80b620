package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"kafka-relay/src/broker"
	"kafka-relay/src/contracts"
	"kafka-relay/src/logger"
	"kafka-relay/src/sanitize"
)

// Names of the built-in handlers, usable from group configuration.
const (
	HandlerCreate  = "create"
	HandlerLog     = "log"
	HandlerHistory = "history"
	HandlerPayment = "payment"
)

// Create logs the message and always fails. It models a listener whose
// downstream call is permanently broken.
func Create(log logger.Logger) Handler {
	return func(ctx context.Context, msg broker.Message) error {
		log.Info("Create::: Received message: %s", sanitize.Payload(msg.Value))
		return Retryable("create listener rejected message")
	}
}

// Log logs the message.
func Log(log logger.Logger) Handler {
	return func(ctx context.Context, msg broker.Message) error {
		log.Info("LOG::: Received message: %s", sanitize.Payload(msg.Value))
		return nil
	}
}

// History logs the message with its position.
func History(log logger.Logger) Handler {
	return func(ctx context.Context, msg broker.Message) error {
		log.Info("HISTORY::: Received message: %s (partition %d, offset %d)", sanitize.Payload(msg.Value), msg.Partition, msg.Offset)
		return nil
	}
}

// Payment decodes a payment and logs it. Undecodable or invalid payments are fatal.
func Payment(log logger.Logger) Handler {
	return func(ctx context.Context, msg broker.Message) error {
		var p contracts.Payment
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return AsFatal("malformed payment", err)
		}
		if err := p.Validate(); err != nil {
			return AsFatal("invalid payment", err)
		}
		log.Info("PAYMENT::: Received payment %s (amount %.2f)", p.ID, p.Amount)
		return nil
	}
}

var builtins = map[string]func(logger.Logger) Handler{
	HandlerCreate:  Create,
	HandlerLog:     Log,
	HandlerHistory: History,
	HandlerPayment: Payment,
}

// ByName returns the built-in handler called name.
func ByName(name string, log logger.Logger) (Handler, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q (known: %v)", name, Names())
	}
	return build(log), nil
}

// Names lists the built-in handler names.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
