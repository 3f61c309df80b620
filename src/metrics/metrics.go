// Package metrics exposes Prometheus counters for the produce/consume pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Consume outcomes recorded on relay_messages_consumed_total.
const (
	OutcomeOK           = "ok"
	OutcomeDropped      = "dropped"
	OutcomeDeadLettered = "dead_lettered"
)

var (
	messagesProduced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_produced_total",
		Help: "Total number of messages acknowledged by the broker",
	}, []string{"topic"})
	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_publish_failures_total",
		Help: "Total number of failed publish attempts",
	}, []string{"topic"})
	messagesConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_consumed_total",
		Help: "Total number of messages whose offset was committed, by outcome",
	}, []string{"group", "outcome"})
	handlerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_handler_retries_total",
		Help: "Total number of handler redeliveries",
	}, []string{"group"})
	deadLetters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_dead_letters_total",
		Help: "Total number of messages sent to dead-letter storage",
	}, []string{"group"})

	registerOnce sync.Once
)

// Collectors returns every relay collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{messagesProduced, publishFailures, messagesConsumed, handlerRetries, deadLetters}
}

// RegisterMetrics registers the relay collectors with the default registry.
// Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

func IncProduced(topic string) {
	messagesProduced.WithLabelValues(topic).Inc()
}

func IncPublishFailure(topic string) {
	publishFailures.WithLabelValues(topic).Inc()
}

func IncConsumed(group, outcome string) {
	messagesConsumed.WithLabelValues(group, outcome).Inc()
}

func IncRetry(group string) {
	handlerRetries.WithLabelValues(group).Inc()
}

func IncDeadLetter(group string) {
	deadLetters.WithLabelValues(group).Inc()
}
