package main

import (
	"github.com/spf13/cobra"

	"kafka-relay/src/contracts"
)

// strConsumerCmd runs the consumer groups of str-topic.
var strConsumerCmd = &cobra.Command{
	Use:   "str-consumer",
	Short: "Run the consumer groups attached to str-topic",
	Long: `Runs every consumer group configured for str-topic, each in its own
goroutine with its own offsets and failure policy.

Default groups:
  group-0  log      dropAndCommit
  group-1  create   retryThenDeadLetter (maxRetries 2, always fails)
  group-2  history  dropAndCommit

Override them with RELAY_GROUPS_FILE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return consume(contracts.TopicStrings)
	},
}

// paymentConsumerCmd runs the consumer groups of payment-topic.
var paymentConsumerCmd = &cobra.Command{
	Use:   "payment-consumer",
	Short: "Run the consumer groups attached to payment-topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		return consume(contracts.TopicPayments)
	},
}

func consume(topic string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runner, err := rt.consumerRunner(ctx, topic)
	if err != nil {
		return err
	}

	log.Info("Consumer groups started on %s, waiting for messages...", topic)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	for _, d := range runner.Dispatchers() {
		s := d.Stats()
		log.Info("[%s] delivered=%d succeeded=%d retried=%d dropped=%d dead-lettered=%d committed=%v",
			d.GroupID(), s.Delivered, s.Succeeded, s.Retried, s.Dropped, s.DeadLettered, s.Committed)
	}
	log.Info("Consumers stopped")
	return nil
}
