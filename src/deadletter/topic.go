package deadletter

import (
	"context"
	"fmt"
	"strconv"

	"kafka-relay/src/broker"
	"kafka-relay/src/contracts"
)

// TopicSink republishes dead letters to "<topic>.DLT" on the broker, keeping
// the original key and value. Failure details travel as record headers.
type TopicSink struct {
	broker broker.Broker
}

func NewTopicSink(brk broker.Broker) *TopicSink {
	return &TopicSink{broker: brk}
}

func (s *TopicSink) Send(ctx context.Context, letter Letter) error {
	msg := letter.Message

	headers := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[contracts.HeaderGroup] = letter.GroupID
	headers[contracts.HeaderReason] = letter.Reason
	headers[contracts.HeaderAttempts] = strconv.Itoa(letter.Attempts)
	headers[contracts.HeaderOffset] = fmt.Sprintf("%d:%d", msg.Partition, msg.Offset)

	topic := contracts.DeadLetterTopic(msg.Topic)
	if _, err := s.broker.PublishWithHeaders(ctx, topic, msg.Key, msg.Value, headers); err != nil {
		return fmt.Errorf("failed to publish dead letter to %s: %w", topic, err)
	}
	return nil
}
