package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kafka-relay/src/broker"
	"kafka-relay/src/contracts"
	"kafka-relay/src/cursor"
	"kafka-relay/src/deadletter"
	"kafka-relay/src/listener"
	"kafka-relay/src/producer"
)

const waitFor = 2 * time.Second

// recorder is a handler that records every invocation and returns the
// result of fail for the attempt.
type recorder struct {
	mu    sync.Mutex
	calls []broker.Message
	fail  func(msg broker.Message, attempt int) error
}

func (r *recorder) handle(ctx context.Context, msg broker.Message) error {
	r.mu.Lock()
	r.calls = append(r.calls, msg)
	attempt := 0
	for _, c := range r.calls {
		if c.Partition == msg.Partition && c.Offset == msg.Offset {
			attempt++
		}
	}
	fail := r.fail
	r.mu.Unlock()

	if fail != nil {
		return fail(msg, attempt)
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = string(c.Value)
	}
	return out
}

// start runs d in the background and returns a function that stops it and
// waits for Run to return.
func start(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background())
	}()

	require.Eventually(t, func() bool { return d.State() == Polling || d.State() == Dispatching },
		waitFor, time.Millisecond, "dispatcher %s never attached", d.GroupID())

	var once sync.Once
	stop := func() {
		once.Do(func() {
			d.Stop()
			select {
			case err := <-done:
				// nil when the broker was closed first.
				if err != nil {
					assert.ErrorIs(t, err, context.Canceled)
				}
			case <-time.After(waitFor):
				t.Fatalf("dispatcher %s did not stop", d.GroupID())
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func newDispatcher(t *testing.T, brk broker.Broker, cfg GroupConfig, h listener.Handler, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(brk, cfg, h, opts...)
	require.NoError(t, err)
	return d
}

func committed(brk *broker.InMemoryBroker, group, topic string, partition int32) int64 {
	off, ok := brk.CommittedOffset(group, topic, partition)
	if !ok {
		return -1
	}
	return off
}

func retryPolicy(maxRetries int) RetryThenDeadLetter {
	return RetryThenDeadLetter{MaxRetries: maxRetries, Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDispatcher_FanOutToThreeGroups(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	logRec := &recorder{}
	createRec := &recorder{fail: func(broker.Message, int) error { return listener.Retryable("downstream rejected") }}
	historyRec := &recorder{}
	dlq := deadletter.NewMemorySink()

	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings, Policy: DropAndCommit{}}, logRec.handle))
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: retryPolicy(2)}, createRec.handle,
		WithDeadLetterSink(dlq)))
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-2", Topic: contracts.TopicStrings, Policy: DropAndCommit{}}, historyRec.handle))

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return committed(brk, "group-0", contracts.TopicStrings, 0) == 1 &&
			committed(brk, "group-1", contracts.TopicStrings, 0) == 1 &&
			committed(brk, "group-2", contracts.TopicStrings, 0) == 1
	}, waitFor, time.Millisecond)

	assert.Equal(t, []string{"hello"}, logRec.values())
	assert.Equal(t, []string{"hello"}, historyRec.values())
	assert.Equal(t, 3, createRec.count(), "maxRetries=2 means exactly three attempts")

	letters, err := dlq.List(ctx, "group-1", 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Equal(t, "hello", string(letters[0].Message.Value))
	assert.Equal(t, "downstream rejected", letters[0].Reason)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{}
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}, rec.handle))

	var want []string
	for i := 0; i < 20; i++ {
		v := fmt.Sprintf("m%d", i)
		want = append(want, v)
		_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte(v))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return rec.count() == len(want) }, waitFor, time.Millisecond)
	assert.Equal(t, want, rec.values())
	require.Eventually(t, func() bool { return committed(brk, "group-0", contracts.TopicStrings, 0) == 20 },
		waitFor, time.Millisecond)
}

func TestDispatcher_OrderWithinEachPartition(t *testing.T) {
	brk := broker.NewInMemoryBroker(broker.WithPartitions(4))
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{}
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}, rec.handle))

	for i := 0; i < 40; i++ {
		_, err := brk.Publish(ctx, contracts.TopicStrings, fmt.Sprintf("k%d", i%7), []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return rec.count() == 40 }, waitFor, time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := map[int32]int64{}
	for _, c := range rec.calls {
		prev, seen := last[c.Partition]
		if seen {
			assert.Greater(t, c.Offset, prev, "partition %d out of order", c.Partition)
		}
		last[c.Partition] = c.Offset
	}
}

func TestDispatcher_FailingGroupDoesNotDelayOthers(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	slow := &recorder{fail: func(broker.Message, int) error { return errors.New("unavailable") }}
	fast := &recorder{}

	start(t, newDispatcher(t, brk, GroupConfig{
		GroupID: "group-1",
		Topic:   contracts.TopicStrings,
		Policy:  RetryThenDeadLetter{MaxRetries: 10, Backoff: time.Second},
	}, slow.handle))
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}, fast.handle))

	for i := 0; i < 5; i++ {
		_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return committed(brk, "group-0", contracts.TopicStrings, 0) == 5 },
		500*time.Millisecond, time.Millisecond)
	assert.Equal(t, 5, fast.count())
	assert.Equal(t, int64(-1), committed(brk, "group-1", contracts.TopicStrings, 0))
}

func TestDispatcher_CommitsOnlyCompletedWork(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	handler := func(ctx context.Context, msg broker.Message) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	d := newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}, handler)
	start(t, d)

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("slow"))
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("handler was not invoked")
	}

	assert.Equal(t, Dispatching, d.State())
	assert.Equal(t, int64(-1), committed(brk, "group-0", contracts.TopicStrings, 0))

	close(release)
	require.Eventually(t, func() bool { return committed(brk, "group-0", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return d.Stats().Committed[0] == 1 }, waitFor, time.Millisecond)
}

func TestDispatcher_DropAndCommit(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{fail: func(broker.Message, int) error { return errors.New("boom") }}
	dlq := deadletter.NewMemorySink()
	d := newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings, Policy: DropAndCommit{}}, rec.handle,
		WithDeadLetterSink(dlq))
	start(t, d)

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return committed(brk, "group-0", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, 1, rec.count())

	letters, err := dlq.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, letters)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(0), stats.Succeeded)
}

func TestDispatcher_RetrySucceedsBeforeExhaustion(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{fail: func(_ broker.Message, attempt int) error {
		if attempt < 3 {
			return listener.Retryable("not yet")
		}
		return nil
	}}
	dlq := deadletter.NewMemorySink()
	d := newDispatcher(t, brk, GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: retryPolicy(2)}, rec.handle,
		WithDeadLetterSink(dlq))
	start(t, d)

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return committed(brk, "group-1", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, 3, rec.count())

	letters, err := dlq.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, letters)

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Retried)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(0), stats.DeadLettered)
}

func TestDispatcher_FatalSkipsRetries(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{fail: func(broker.Message, int) error { return listener.Fatal("poison") }}
	dlq := deadletter.NewMemorySink()
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: retryPolicy(5)}, rec.handle,
		WithDeadLetterSink(dlq)))

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return committed(brk, "group-1", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, 1, rec.count())

	letters, err := dlq.List(ctx, "group-1", 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 1, letters[0].Attempts)
	assert.Equal(t, "poison", letters[0].Reason)
}

func TestDispatcher_RecoversHandlerPanic(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	var calls atomic.Int32
	handler := func(ctx context.Context, msg broker.Message) error {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		return nil
	}
	d := newDispatcher(t, brk, GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: retryPolicy(1)}, handler)
	start(t, d)

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return committed(brk, "group-1", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), d.Stats().Retried)
}

// flakySink fails the first failures sends.
type flakySink struct {
	deadletter.MemorySink
	failures int32
	sends    atomic.Int32
}

func (s *flakySink) Send(ctx context.Context, letter deadletter.Letter) error {
	if s.sends.Add(1) <= s.failures {
		return errors.New("sink unavailable")
	}
	return s.MemorySink.Send(ctx, letter)
}

func TestDispatcher_SinkFailureBlocksCommit(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{fail: func(broker.Message, int) error { return listener.Fatal("poison") }}
	sink := &flakySink{failures: 3}
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: retryPolicy(0)}, rec.handle,
		WithDeadLetterSink(sink), WithSinkRetryInterval(20*time.Millisecond)))

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.sends.Load() >= 1 }, waitFor, time.Millisecond)
	assert.Equal(t, int64(-1), committed(brk, "group-1", contracts.TopicStrings, 0))

	require.Eventually(t, func() bool { return committed(brk, "group-1", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, int32(4), sink.sends.Load())
	assert.Equal(t, 1, rec.count(), "handler is not re-run while the sink is retried")

	letters, err := sink.List(ctx, "group-1", 0)
	require.NoError(t, err)
	assert.Len(t, letters, 1)
}

func TestDispatcher_StopWhileSinkDownLeavesOffset(t *testing.T) {
	ctx := context.Background()
	cfg := GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: retryPolicy(0)}
	poisonFirst := func(msg broker.Message, _ int) error {
		if msg.Offset == 0 {
			return listener.Fatal("poison")
		}
		return nil
	}

	// A second message is queued behind the unresolved one; stopping must
	// not let it run and commit past offset 0.
	for i := 0; i < 20; i++ {
		brk := broker.NewInMemoryBroker()
		rec := &recorder{fail: poisonFirst}
		down := &flakySink{failures: 1 << 30}

		stop := start(t, newDispatcher(t, brk, cfg, rec.handle, WithDeadLetterSink(down), WithSinkRetryInterval(time.Millisecond)))
		for _, v := range []string{"x", "y"} {
			_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte(v))
			require.NoError(t, err)
		}

		require.Eventually(t, func() bool { return down.sends.Load() >= 2 }, waitFor, time.Millisecond)
		stop()
		require.Equal(t, int64(-1), committed(brk, "group-1", contracts.TopicStrings, 0), "run %d", i)
		require.Equal(t, []string{"x"}, rec.values(), "run %d", i)

		if i < 19 {
			brk.Close()
			continue
		}

		// Both messages are redelivered to the next attachment.
		up := deadletter.NewMemorySink()
		start(t, newDispatcher(t, brk, cfg, rec.handle, WithDeadLetterSink(up)))

		require.Eventually(t, func() bool { return committed(brk, "group-1", contracts.TopicStrings, 0) == 2 },
			waitFor, time.Millisecond)
		assert.Equal(t, []string{"x", "x", "y"}, rec.values())

		letters, err := up.List(ctx, "group-1", 0)
		require.NoError(t, err)
		assert.Len(t, letters, 1)
		brk.Close()
	}
}

func TestDispatcher_StopDuringBackoffLeavesBacklog(t *testing.T) {
	ctx := context.Background()
	policy := RetryThenDeadLetter{MaxRetries: 5, Backoff: time.Second, MaxBackoff: time.Second}
	cfg := GroupConfig{GroupID: "group-1", Topic: contracts.TopicStrings, Policy: policy}

	for i := 0; i < 20; i++ {
		brk := broker.NewInMemoryBroker()
		rec := &recorder{fail: func(msg broker.Message, _ int) error {
			if msg.Offset == 0 {
				return listener.Retryable("downstream rejected")
			}
			return nil
		}}

		stop := start(t, newDispatcher(t, brk, cfg, rec.handle))
		for _, v := range []string{"x", "y"} {
			_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte(v))
			require.NoError(t, err)
		}

		require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, time.Millisecond)
		stop()
		require.Equal(t, int64(-1), committed(brk, "group-1", contracts.TopicStrings, 0), "run %d", i)
		require.Equal(t, []string{"x"}, rec.values(), "run %d", i)
		brk.Close()
	}
}

func TestDispatcher_ReattachResumesFromCommit(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	cfg := GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}
	first := &recorder{}
	d := newDispatcher(t, brk, cfg, first.handle)
	stop := start(t, d)

	for _, v := range []string{"a", "b"} {
		_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte(v))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return committed(brk, "group-0", contracts.TopicStrings, 0) == 2 },
		waitFor, time.Millisecond)

	stop()
	assert.Equal(t, Detached, d.State())

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("c"))
	require.NoError(t, err)

	second := &recorder{}
	start(t, newDispatcher(t, brk, cfg, second.handle))

	require.Eventually(t, func() bool { return second.count() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, first.values())
	assert.Equal(t, []string{"c"}, second.values())
}

func TestDispatcher_StartLatestSkipsBacklog(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte("old"))
	require.NoError(t, err)

	rec := &recorder{}
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings, Start: broker.StartLatest}, rec.handle))

	_, err = brk.Publish(ctx, contracts.TopicStrings, "", []byte("new"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"new"}, rec.values())
}

func TestDispatcher_RestoresCursorFromStore(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		_, err := brk.Publish(ctx, contracts.TopicStrings, "", []byte(v))
		require.NoError(t, err)
	}

	store := cursor.NewMemoryStore()
	require.NoError(t, store.Save(ctx, cursor.Cursor{GroupID: "group-2", Topic: contracts.TopicStrings, Partition: 0, Offset: 2}))

	rec := &recorder{}
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "group-2", Topic: contracts.TopicStrings}, rec.handle,
		WithCursorStore(store)))

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"c"}, rec.values())

	require.Eventually(t, func() bool {
		cursors, err := store.Load(ctx, "group-2", contracts.TopicStrings)
		return err == nil && len(cursors) == 1 && cursors[0].Offset == 3
	}, waitFor, time.Millisecond)
}

func TestDispatcher_IdempotentHandlerSkipsCompleted(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	rec := &recorder{}
	h, err := listener.Idempotent(rec.handle, 16)
	require.NoError(t, err)

	_, err = brk.Publish(ctx, contracts.TopicStrings, "", []byte("once"))
	require.NoError(t, err)

	cfg := GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}
	stop := start(t, newDispatcher(t, brk, cfg, h))
	require.Eventually(t, func() bool { return committed(brk, "group-0", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	stop()

	// A fresh broker with the same log redelivers offset 0 to the same handler.
	brk2 := broker.NewInMemoryBroker()
	defer brk2.Close()
	for _, m := range brk.Messages(contracts.TopicStrings, 0) {
		_, err := brk2.Publish(ctx, m.Topic, m.Key, m.Value)
		require.NoError(t, err)
	}
	start(t, newDispatcher(t, brk2, cfg, h))

	require.Eventually(t, func() bool { return committed(brk2, "group-0", contracts.TopicStrings, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestNewDispatcher_Validation(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	noop := func(context.Context, broker.Message) error { return nil }

	_, err := NewDispatcher(brk, GroupConfig{Topic: "t"}, noop)
	assert.Error(t, err)

	_, err = NewDispatcher(brk, GroupConfig{GroupID: "g"}, noop)
	assert.Error(t, err)

	_, err = NewDispatcher(brk, GroupConfig{GroupID: "g", Topic: "t"}, nil)
	assert.Error(t, err)

	d, err := NewDispatcher(brk, GroupConfig{GroupID: "g", Topic: "t"}, noop)
	require.NoError(t, err)
	assert.Equal(t, Detached, d.State())
	assert.Equal(t, broker.StartEarliest, d.Config().Start)
	assert.Equal(t, DropAndCommit{}, d.Config().Policy)
}

func TestDispatcher_DuplicateAttachFails(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	cfg := GroupConfig{GroupID: "group-0", Topic: contracts.TopicStrings}
	start(t, newDispatcher(t, brk, cfg, (&recorder{}).handle))

	err := newDispatcher(t, brk, cfg, (&recorder{}).handle).Run(context.Background())
	assert.ErrorIs(t, err, broker.ErrAlreadySubscribed)
}

func TestDispatcher_PaymentPublishedOnceReceivedOnce(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	defer brk.Close()
	ctx := context.Background()

	payments, err := producer.NewPaymentService(brk, producer.DefaultConfig(""), nil)
	require.NoError(t, err)

	res, err := payments.SendPayment(ctx, contracts.Payment{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, contracts.TopicPayments, res.Topic)

	rec := &recorder{}
	start(t, newDispatcher(t, brk, GroupConfig{GroupID: "payment-group", Topic: contracts.TopicPayments, Start: broker.StartEarliest}, rec.handle))

	require.Eventually(t, func() bool { return committed(brk, "payment-group", contracts.TopicPayments, 0) == 1 },
		waitFor, time.Millisecond)
	assert.Equal(t, []string{`{"id":"p1"}`}, rec.values())
}
