// Package broker provides Redpanda/Kafka broker implementation.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"kafka-relay/src/logger"
)

// RedpandaBroker is a Kafka-compatible broker implementation using franz-go.
// The producer client is shared by every caller; each subscription owns a
// dedicated group consumer client.
type RedpandaBroker struct {
	client    *kgo.Client
	brokers   []string
	extraOpts []kgo.Opt
	logger    logger.Logger
	mu        sync.RWMutex
	consumers map[string]*redpandaSubscription // topic:groupID -> subscription
	closed    bool
}

// NewRedpandaBroker creates a new RedpandaBroker instance.
// brokers is a slice of broker addresses (e.g., ["localhost:19092"]).
// opts are appended to both producer and consumer clients (TLS, SASL, etc.).
func NewRedpandaBroker(brokers []string, log logger.Logger, opts ...kgo.Opt) (*RedpandaBroker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	producerOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	}, opts...)

	client, err := kgo.NewClient(producerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &RedpandaBroker{
		client:    client,
		brokers:   brokers,
		extraOpts: opts,
		logger:    log,
		consumers: make(map[string]*redpandaSubscription),
	}, nil
}

// Ping checks that at least one seed broker is reachable.
func (b *RedpandaBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

// Publish sends a message to a topic with the specified key.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte) (PublishResult, error) {
	return b.PublishWithHeaders(ctx, topic, key, value, nil)
}

// PublishWithHeaders sends a message with record headers and waits for the acknowledgment.
func (b *RedpandaBroker) PublishWithHeaders(ctx context.Context, topic string, key string, value []byte, headers map[string]string) (PublishResult, error) {
	if err := validateTopic(topic); err != nil {
		return PublishResult{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return PublishResult{}, &PublishError{Kind: BrokerUnavailable, Topic: topic, Err: ErrBrokerClosed}
	}

	record := &kgo.Record{
		Topic: topic,
		Value: value,
	}
	if key != "" {
		record.Key = []byte(key)
	}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	// Synchronous produce; the caller needs the partition and offset.
	produced, err := b.client.ProduceSync(ctx, record).First()
	if err != nil {
		return PublishResult{}, classifyProduceError(topic, err)
	}

	return PublishResult{
		Topic:     produced.Topic,
		Partition: produced.Partition,
		Offset:    produced.Offset,
	}, nil
}

func classifyProduceError(topic string, err error) error {
	kind := BrokerUnavailable
	if errors.Is(err, kerr.MessageTooLarge) ||
		errors.Is(err, kerr.RecordListTooLarge) ||
		errors.Is(err, kerr.InvalidRecord) ||
		errors.Is(err, kerr.CorruptMessage) {
		kind = SerializationError
	}
	return &PublishError{Kind: kind, Topic: topic, Err: fmt.Errorf("failed to produce message: %w", err)}
}

// Subscribe registers a consumer for the specified topic and consumer group.
// The consumer client is created when Messages is first called, so seeks
// issued before that are applied as the group's starting offsets. Later
// seeks are rejected with ErrSeekAfterStart.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string, start StartPolicy) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if groupID == "" {
		return nil, fmt.Errorf("group ID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	consumerKey := fmt.Sprintf("%s:%s", topic, groupID)

	// Check if consumer already exists
	if _, exists := b.consumers[consumerKey]; exists {
		return nil, fmt.Errorf("%w: topic %s, group %s", ErrAlreadySubscribed, topic, groupID)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redpandaSubscription{
		broker:  b,
		key:     consumerKey,
		topic:   topic,
		groupID: groupID,
		start:   start,
		pending: make(map[int32]int64),
		out:     make(chan Message, 100),
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	b.consumers[consumerKey] = sub

	return sub, nil
}

// Close shuts down the broker and all consumer connections.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redpandaSubscription, 0, len(b.consumers))
	for _, sub := range b.consumers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	// Close all consumers
	for _, sub := range subs {
		sub.Close()
	}

	// Close producer client
	b.client.Close()

	return nil
}

type redpandaSubscription struct {
	broker  *RedpandaBroker
	key     string
	topic   string
	groupID string
	start   StartPolicy

	mu       sync.Mutex
	consumer *kgo.Client
	pending  map[int32]int64
	started  bool
	closed   bool

	out       chan Message
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func (s *redpandaSubscription) Messages() <-chan Message {
	s.startOnce.Do(func() {
		if err := s.startConsumer(); err != nil {
			s.broker.logger.Error("[RedpandaBroker] Failed to create consumer for %s: %v", s.key, err)
			close(s.out)
			close(s.done)
		}
	})
	return s.out
}

func (s *redpandaSubscription) startConsumer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriptionClosed
	}

	reset := kgo.NewOffset().AtStart()
	if s.start == StartLatest {
		reset = kgo.NewOffset().AtEnd()
	}

	opts := append([]kgo.Opt{
		kgo.SeedBrokers(s.broker.brokers...),
		kgo.ConsumerGroup(s.groupID),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(reset),
		kgo.DisableAutoCommit(),
		kgo.AdjustFetchOffsetsFn(s.applyPendingSeeks),
	}, s.broker.extraOpts...)

	consumer, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	s.consumer = consumer
	s.started = true

	// Start consuming in a goroutine
	go s.consumeLoop()

	return nil
}

// applyPendingSeeks overrides fetched group offsets with explicit seeks made
// before the group joined.
func (s *redpandaSubscription) applyPendingSeeks(_ context.Context, offsets map[string]map[int32]kgo.Offset) (map[string]map[int32]kgo.Offset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, ok := offsets[s.topic]
	if !ok {
		return offsets, nil
	}
	for partition := range partitions {
		if off, ok := s.pending[partition]; ok {
			partitions[partition] = kgo.NewOffset().At(off)
		}
	}
	return offsets, nil
}

// consumeLoop continuously polls for messages and sends them to the channel.
func (s *redpandaSubscription) consumeLoop() {
	defer close(s.done)
	defer close(s.out)

	log := s.broker.logger

	for {
		if s.ctx.Err() != nil {
			return
		}

		fetches := s.consumer.PollFetches(s.ctx)
		if fetches.IsClientClosed() {
			return
		}

		// Log errors but keep delivering records from healthy partitions
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("[RedpandaBroker] Fetch error on %s[%d]: %v", topic, partition, err)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			msg := Message{
				Topic:       record.Topic,
				Key:         string(record.Key),
				Value:       record.Value,
				Offset:      record.Offset,
				Partition:   record.Partition,
				Timestamp:   record.Timestamp.UnixMilli(),
				leaderEpoch: record.LeaderEpoch,
			}
			if len(record.Headers) > 0 {
				msg.Headers = make(map[string]string, len(record.Headers))
				for _, h := range record.Headers {
					msg.Headers[h.Key] = string(h.Value)
				}
			}

			select {
			case s.out <- msg:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *redpandaSubscription) Commit(ctx context.Context, msg Message) error {
	s.mu.Lock()
	consumer := s.consumer
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrSubscriptionClosed
	}
	if consumer == nil {
		return fmt.Errorf("commit before consumption started on %s", s.key)
	}

	record := &kgo.Record{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		LeaderEpoch: msg.leaderEpoch,
	}
	if err := consumer.CommitRecords(ctx, record); err != nil {
		return fmt.Errorf("failed to commit %s[%d]@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}

func (s *redpandaSubscription) Seek(partition int32, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("invalid offset %d", offset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriptionClosed
	}
	// Records fetched before the seek may already be buffered in out.
	if s.started {
		return fmt.Errorf("%w: %s[%d]", ErrSeekAfterStart, s.topic, partition)
	}

	s.pending[partition] = offset
	return nil
}

func (s *redpandaSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		consumer := s.consumer
		s.mu.Unlock()

		s.cancel()
		if consumer != nil {
			consumer.Close()
			<-s.done
		}

		b := s.broker
		b.mu.Lock()
		if b.consumers[s.key] == s {
			delete(b.consumers, s.key)
		}
		b.mu.Unlock()
	})
	return nil
}
