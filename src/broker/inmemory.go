package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"kafka-relay/src/logger"
)

// InMemoryBroker is a partitioned, append-only log kept in process memory.
// It mirrors the Kafka consumer-group contract: reads are non-destructive,
// every group has its own committed offsets, and a group that detaches and
// reattaches resumes from its last commit.
type InMemoryBroker struct {
	mu              sync.Mutex
	partitions      int
	maxMessageBytes int
	topics          map[string]*topicLog
	committed       map[offsetKey]int64
	subs            map[string]*memSubscription // topic:groupID -> subscription
	logger          logger.Logger
	closed          bool
}

type topicLog struct {
	partitions [][]Message
	next       int // round-robin cursor for keyless records
}

type offsetKey struct {
	group     string
	topic     string
	partition int32
}

// InMemoryOption configures an InMemoryBroker.
type InMemoryOption func(*InMemoryBroker)

// WithPartitions sets the number of partitions for newly created topics.
func WithPartitions(n int) InMemoryOption {
	return func(b *InMemoryBroker) {
		if n > 0 {
			b.partitions = n
		}
	}
}

// WithMaxMessageBytes rejects values larger than n bytes. Zero disables the check.
func WithMaxMessageBytes(n int) InMemoryOption {
	return func(b *InMemoryBroker) {
		b.maxMessageBytes = n
	}
}

// WithLogger sets the broker logger.
func WithLogger(log logger.Logger) InMemoryOption {
	return func(b *InMemoryBroker) {
		b.logger = log
	}
}

// NewInMemoryBroker creates a new InMemoryBroker instance with one partition per topic.
func NewInMemoryBroker(opts ...InMemoryOption) *InMemoryBroker {
	b := &InMemoryBroker{
		partitions: 1,
		topics:     make(map[string]*topicLog),
		committed:  make(map[offsetKey]int64),
		subs:       make(map[string]*memSubscription),
		logger:     logger.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends a message to the topic, creating the topic on first use.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) (PublishResult, error) {
	return b.PublishWithHeaders(ctx, topic, key, value, nil)
}

// PublishWithHeaders appends a message with headers to the topic.
func (b *InMemoryBroker) PublishWithHeaders(ctx context.Context, topic string, key string, value []byte, headers map[string]string) (PublishResult, error) {
	if err := validateTopic(topic); err != nil {
		return PublishResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return PublishResult{}, &PublishError{Kind: BrokerUnavailable, Topic: topic, Err: err}
	}
	if b.maxMessageBytes > 0 && len(value) > b.maxMessageBytes {
		return PublishResult{}, &PublishError{
			Kind:  SerializationError,
			Topic: topic,
			Err:   fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, len(value), b.maxMessageBytes),
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return PublishResult{}, &PublishError{Kind: BrokerUnavailable, Topic: topic, Err: ErrBrokerClosed}
	}

	log := b.topicLocked(topic)
	partition := log.pick(key)

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     append([]byte(nil), value...),
		Headers:   copyHeaders(headers),
		Offset:    int64(len(log.partitions[partition])),
		Partition: int32(partition),
		Timestamp: time.Now().UnixMilli(),
	}
	log.partitions[partition] = append(log.partitions[partition], msg)

	var waiting []*memSubscription
	for _, sub := range b.subs {
		if sub.topic == topic {
			waiting = append(waiting, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range waiting {
		sub.wakeup()
	}

	b.logger.Debug("[InMemoryBroker] Published to %s[%d]@%d", topic, msg.Partition, msg.Offset)

	return PublishResult{Topic: topic, Partition: msg.Partition, Offset: msg.Offset}, nil
}

// Subscribe attaches groupID to topic. Only one active subscription per
// topic and group is allowed.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string, start StartPolicy) (Subscription, error) {
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

	subKey := fmt.Sprintf("%s:%s", topic, groupID)
	if _, exists := b.subs[subKey]; exists {
		return nil, fmt.Errorf("%w: topic %s, group %s", ErrAlreadySubscribed, topic, groupID)
	}

	log := b.topicLocked(topic)
	positions := make([]int64, len(log.partitions))
	for p := range log.partitions {
		if off, ok := b.committed[offsetKey{group: groupID, topic: topic, partition: int32(p)}]; ok {
			positions[p] = off
			continue
		}
		if start == StartLatest {
			positions[p] = int64(len(log.partitions[p]))
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memSubscription{
		broker:    b,
		key:       subKey,
		topic:     topic,
		groupID:   groupID,
		positions: positions,
		out:       make(chan Message),
		wake:      make(chan struct{}, 1),
		seeks:     make(chan seekRequest),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	b.subs[subKey] = sub

	go sub.deliverLoop(subCtx)

	b.logger.Debug("[InMemoryBroker] Group %s attached to %s at %v", groupID, topic, positions)

	return sub, nil
}

// CommittedOffset returns the next offset groupID will read on the partition.
func (b *InMemoryBroker) CommittedOffset(groupID, topic string, partition int32) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	off, ok := b.committed[offsetKey{group: groupID, topic: topic, partition: partition}]
	return off, ok
}

// EndOffset returns the offset the next message on the partition will get.
func (b *InMemoryBroker) EndOffset(topic string, partition int32) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	log, ok := b.topics[topic]
	if !ok || int(partition) >= len(log.partitions) {
		return 0
	}
	return int64(len(log.partitions[partition]))
}

// Messages returns a copy of every message stored on the partition.
func (b *InMemoryBroker) Messages(topic string, partition int32) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	log, ok := b.topics[topic]
	if !ok || int(partition) >= len(log.partitions) {
		return nil
	}
	return append([]Message(nil), log.partitions[partition]...)
}

// Close stops every subscription. Stored messages and offsets are dropped with the broker.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*memSubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

func (b *InMemoryBroker) topicLocked(topic string) *topicLog {
	log, ok := b.topics[topic]
	if !ok {
		log = &topicLog{partitions: make([][]Message, b.partitions)}
		b.topics[topic] = log
	}
	return log
}

func (l *topicLog) pick(key string) int {
	n := len(l.partitions)
	if key != "" {
		return int(xxhash.Sum64String(key) % uint64(n))
	}
	p := l.next % n
	l.next++
	return p
}

// memSubscription delivers one group's unread messages over an unbuffered
// channel. Positions advance on delivery; commits are separate. Positions
// are owned by the delivery goroutine, so seeks are handed to it.
type memSubscription struct {
	broker  *InMemoryBroker
	key     string
	topic   string
	groupID string

	positions []int64
	rotate    int

	out       chan Message
	wake      chan struct{}
	seeks     chan seekRequest
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

type seekRequest struct {
	partition int32
	offset    int64
	result    chan error
}

func (s *memSubscription) Messages() <-chan Message {
	return s.out
}

func (s *memSubscription) Commit(ctx context.Context, msg Message) error {
	if msg.Topic != s.topic {
		return fmt.Errorf("message from topic %q committed on subscription for %q", msg.Topic, s.topic)
	}
	select {
	case <-s.done:
		return ErrSubscriptionClosed
	default:
	}

	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	b.committed[offsetKey{group: s.groupID, topic: s.topic, partition: msg.Partition}] = msg.Offset + 1
	return nil
}

// Seek returns once the delivery goroutine has applied the new position, so
// no message from before the seek is delivered afterwards.
func (s *memSubscription) Seek(partition int32, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("invalid offset %d", offset)
	}

	req := seekRequest{partition: partition, offset: offset, result: make(chan error, 1)}
	select {
	case s.seeks <- req:
	case <-s.done:
		return ErrSubscriptionClosed
	}
	return <-req.result
}

func (s *memSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		b := s.broker
		b.mu.Lock()
		if b.subs[s.key] == s {
			delete(b.subs, s.key)
		}
		b.mu.Unlock()
	})
	return nil
}

func (s *memSubscription) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memSubscription) applySeek(req seekRequest) {
	if req.partition < 0 || int(req.partition) >= len(s.positions) {
		req.result <- fmt.Errorf("%w: %s[%d]", ErrUnknownPartition, s.topic, req.partition)
		return
	}
	s.positions[req.partition] = req.offset
	req.result <- nil
}

// next returns the next undelivered message, rotating over partitions so
// that one busy partition does not starve the others.
func (s *memSubscription) next() (Message, bool) {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.topics[s.topic]
	n := len(s.positions)
	for i := 0; i < n; i++ {
		p := (s.rotate + i) % n
		pos := s.positions[p]
		if pos < int64(len(log.partitions[p])) {
			s.rotate = (p + 1) % n
			return log.partitions[p][pos], true
		}
	}
	return Message{}, false
}

func (s *memSubscription) deliverLoop(ctx context.Context) {
	defer close(s.out)
	defer close(s.done)

	for {
		msg, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
			case req := <-s.seeks:
				s.applySeek(req)
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case s.out <- msg:
			s.positions[msg.Partition] = msg.Offset + 1
		case <-s.wake:
			// Re-evaluate so a busy partition does not hold back the others.
		case req := <-s.seeks:
			s.applySeek(req)
		case <-ctx.Done():
			return
		}
	}
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
