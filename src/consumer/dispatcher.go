package consumer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"kafka-relay/src/broker"
	"kafka-relay/src/cursor"
	"kafka-relay/src/deadletter"
	"kafka-relay/src/listener"
	"kafka-relay/src/logger"
	"kafka-relay/src/metrics"
)

const (
	defaultCommitTimeout     = 10 * time.Second
	defaultSinkRetryInterval = time.Second
)

// State is a dispatcher lifecycle state.
type State int32

const (
	Detached State = iota
	Attaching
	Polling
	Dispatching
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attaching:
		return "attaching"
	case Polling:
		return "polling"
	case Dispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a dispatcher's progress.
type Stats struct {
	Delivered    int64
	Succeeded    int64
	Retried      int64
	Dropped      int64
	DeadLettered int64
	// Committed maps partition to the next offset the group will read.
	Committed map[int32]int64
}

// Dispatcher delivers one consumer group's messages to its handler.
// Each dispatcher runs in its own goroutine and shares nothing mutable with
// other groups, so a failing handler only slows down its own group.
type Dispatcher struct {
	cfg         GroupConfig
	handler     listener.Handler
	broker      broker.Broker
	cursors     cursor.Store
	deadLetters deadletter.Sink
	logger      logger.Logger

	commitTimeout     time.Duration
	sinkRetryInterval time.Duration

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}

	mu    sync.Mutex
	stats Stats
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCursorStore checkpoints every commit to store and seeks to the stored
// cursors when the group attaches.
func WithCursorStore(store cursor.Store) Option {
	return func(d *Dispatcher) {
		d.cursors = store
	}
}

// WithDeadLetterSink sets where exhausted messages go. Defaults to an in-memory sink.
func WithDeadLetterSink(sink deadletter.Sink) Option {
	return func(d *Dispatcher) {
		d.deadLetters = sink
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = log
	}
}

// WithSinkRetryInterval sets the wait between dead-letter attempts when the sink fails.
func WithSinkRetryInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.sinkRetryInterval = interval
	}
}

// NewDispatcher creates a dispatcher for one group.
func NewDispatcher(brk broker.Broker, cfg GroupConfig, handler listener.Handler, opts ...Option) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required for group %s", cfg.GroupID)
	}
	if cfg.Start == "" {
		cfg.Start = broker.StartEarliest
	}
	if cfg.Policy == nil {
		cfg.Policy = DropAndCommit{}
	}

	d := &Dispatcher{
		cfg:               cfg,
		handler:           handler,
		broker:            brk,
		logger:            logger.NewSilentLogger(),
		commitTimeout:     defaultCommitTimeout,
		sinkRetryInterval: defaultSinkRetryInterval,
		stopCh:            make(chan struct{}),
		stats:             Stats{Committed: make(map[int32]int64)},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.deadLetters == nil {
		d.deadLetters = deadletter.NewMemorySink()
	}

	return d, nil
}

// GroupID returns the dispatcher's consumer group.
func (d *Dispatcher) GroupID() string {
	return d.cfg.GroupID
}

// Config returns the group configuration.
func (d *Dispatcher) Config() GroupConfig {
	return d.cfg
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.stats
	out.Committed = make(map[int32]int64, len(d.stats.Committed))
	for p, off := range d.stats.Committed {
		out.Committed[p] = off
	}
	return out
}

// Stop detaches the group. An in-flight message finishes and is committed;
// the cursor persists for the next attachment.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

func (d *Dispatcher) tag() string {
	return "[Dispatcher:" + d.cfg.GroupID + "]"
}

// Run attaches the group and processes messages until ctx is cancelled,
// Stop is called, or the subscription ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-d.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.setState(Attaching)
	defer d.setState(Detached)

	// The subscription outlives ctx so that an in-flight message can still
	// be committed after cancellation; it is closed explicitly below.
	sub, err := d.broker.Subscribe(context.WithoutCancel(ctx), d.cfg.Topic, d.cfg.GroupID, d.cfg.Start)
	if err != nil {
		return fmt.Errorf("failed to subscribe group %s to %s: %w", d.cfg.GroupID, d.cfg.Topic, err)
	}
	defer sub.Close()

	if err := d.restoreCursors(ctx, sub); err != nil {
		return err
	}

	d.logger.Info("%s Attached to '%s' (start: %s, policy: %s)", d.tag(), d.cfg.Topic, d.cfg.Start, d.cfg.Policy.Name())

	msgChan := sub.Messages()
	for {
		d.setState(Polling)

		select {
		case msg, ok := <-msgChan:
			if !ok {
				d.logger.Info("%s Message channel closed, detaching", d.tag())
				return nil
			}

			// Both cases may be ready at once; a cancelled group must not
			// run a message it received after the cancellation.
			if ctx.Err() != nil {
				d.logger.Info("%s Detached", d.tag())
				return ctx.Err()
			}

			d.setState(Dispatching)
			if err := d.dispatch(ctx, sub, msg); err != nil {
				d.logger.Error("%s Message %s[%d]@%d left uncommitted: %v",
					d.tag(), msg.Topic, msg.Partition, msg.Offset, err)
				// An unresolved message must not be passed by a later commit.
				if ctx.Err() != nil {
					d.logger.Info("%s Detached", d.tag())
					return ctx.Err()
				}
			}

		case <-ctx.Done():
			d.logger.Info("%s Detached", d.tag())
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) restoreCursors(ctx context.Context, sub broker.Subscription) error {
	if d.cursors == nil {
		return nil
	}

	cursors, err := d.cursors.Load(ctx, d.cfg.GroupID, d.cfg.Topic)
	if err != nil {
		return fmt.Errorf("failed to load cursors for group %s: %w", d.cfg.GroupID, err)
	}
	for _, c := range cursors {
		if err := sub.Seek(c.Partition, c.Offset); err != nil {
			return fmt.Errorf("failed to seek group %s to %s[%d]@%d: %w",
				d.cfg.GroupID, c.Topic, c.Partition, c.Offset, err)
		}
		d.logger.Debug("%s Restored cursor %s[%d]@%d", d.tag(), c.Topic, c.Partition, c.Offset)
	}
	return nil
}

// dispatch runs the handler for msg and applies the failure policy. It
// returns an error, without committing, only when ctx ends before the
// message is resolved or the commit itself fails.
func (d *Dispatcher) dispatch(ctx context.Context, sub broker.Subscription, msg broker.Message) error {
	d.count(func(s *Stats) { s.Delivered++ })

	attempts := 0
	for {
		attempts++
		res := d.invoke(ctx, msg)
		if res.Kind == listener.Ok {
			d.count(func(s *Stats) { s.Succeeded++ })
			return d.commit(ctx, sub, msg, metrics.OutcomeOK)
		}

		switch policy := d.cfg.Policy.(type) {
		case RetryThenDeadLetter:
			if res.Kind == listener.RetryableKind && attempts <= policy.MaxRetries {
				d.logger.Warn("%s Attempt %d/%d failed for offset %d: %s",
					d.tag(), attempts, policy.MaxRetries+1, msg.Offset, res.Reason)
				d.count(func(s *Stats) { s.Retried++ })
				metrics.IncRetry(d.cfg.GroupID)

				if err := sleep(ctx, policy.Delay(attempts)); err != nil {
					return err
				}
				continue
			}

			if err := d.deadLetter(ctx, msg, res.Reason, attempts); err != nil {
				return err
			}
			d.count(func(s *Stats) { s.DeadLettered++ })
			metrics.IncDeadLetter(d.cfg.GroupID)
			return d.commit(ctx, sub, msg, metrics.OutcomeDeadLettered)

		default:
			d.logger.Warn("%s Dropping offset %d after %s failure: %s", d.tag(), msg.Offset, res.Kind, res.Reason)
			d.count(func(s *Stats) { s.Dropped++ })
			return d.commit(ctx, sub, msg, metrics.OutcomeDropped)
		}
	}
}

// invoke runs the handler, turning a panic into a retryable failure.
func (d *Dispatcher) invoke(ctx context.Context, msg broker.Message) (res listener.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = listener.Result{Kind: listener.RetryableKind, Reason: fmt.Sprintf("handler panic: %v", r)}
		}
	}()
	return listener.Classify(d.handler(ctx, msg))
}

// deadLetter hands msg to the sink, retrying until it is accepted or ctx ends.
func (d *Dispatcher) deadLetter(ctx context.Context, msg broker.Message, reason string, attempts int) error {
	letter := deadletter.NewLetter(d.cfg.GroupID, msg, reason, attempts)

	for {
		err := d.deadLetters.Send(ctx, letter)
		if err == nil {
			d.logger.Warn("%s Dead-lettered offset %d after %d attempt(s): %s", d.tag(), msg.Offset, attempts, reason)
			return nil
		}

		d.logger.Error("%s Dead-letter sink failed for offset %d: %v", d.tag(), msg.Offset, err)
		if err := sleep(ctx, d.sinkRetryInterval); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) commit(ctx context.Context, sub broker.Subscription, msg broker.Message, outcome string) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.commitTimeout)
	defer cancel()

	if err := sub.Commit(commitCtx, msg); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	next := msg.Offset + 1
	if d.cursors != nil {
		c := cursor.Cursor{GroupID: d.cfg.GroupID, Topic: msg.Topic, Partition: msg.Partition, Offset: next}
		if err := d.cursors.Save(commitCtx, c); err != nil {
			d.logger.Error("%s Failed to checkpoint cursor %s[%d]@%d: %v", d.tag(), msg.Topic, msg.Partition, next, err)
		}
	}

	d.count(func(s *Stats) { s.Committed[msg.Partition] = next })
	metrics.IncConsumed(d.cfg.GroupID, outcome)
	return nil
}

func (d *Dispatcher) count(update func(*Stats)) {
	d.mu.Lock()
	update(&d.stats)
	d.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
