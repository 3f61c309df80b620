package main

import (
	"context"
	"fmt"

	"kafka-relay/src/broker"
	"kafka-relay/src/config"
	"kafka-relay/src/consumer"
	"kafka-relay/src/cursor"
	"kafka-relay/src/deadletter"
	"kafka-relay/src/listener"
)

// dedupeCacheSize bounds the idempotent handler's memory per group.
const dedupeCacheSize = 10000

// runtime owns the process-wide broker client and the stores opened for a
// command. Everything it opens is closed by Close, in reverse order.
type runtime struct {
	cfg     *config.Config
	broker  broker.Broker
	closers []func() error
}

func newRuntime() (*runtime, error) {
	rt := &runtime{cfg: appConfig}

	if appConfig.UseInMemoryBroker() {
		log.Info("Using in-memory broker (%d partitions per topic)", appConfig.Partitions)
		rt.broker = broker.NewInMemoryBroker(
			broker.WithPartitions(appConfig.Partitions),
			broker.WithLogger(log),
		)
	} else {
		log.Info("Using Redpanda brokers: %v", appConfig.Brokers)
		brk, err := broker.NewRedpandaBroker(appConfig.Brokers, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create broker: %w", err)
		}
		rt.broker = brk
	}
	rt.closers = append(rt.closers, rt.broker.Close)

	return rt, nil
}

// Close releases everything the runtime opened.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Error("Close error: %v", err)
		}
	}
}

// cursorStore opens the configured external cursor store. It returns nil
// when offsets are tracked by the broker alone.
func (rt *runtime) cursorStore(ctx context.Context) (cursor.Store, error) {
	var store cursor.Store
	switch rt.cfg.CursorStore {
	case config.CursorStoreBroker:
		return nil, nil
	case config.CursorStoreMemory:
		store = cursor.NewMemoryStore()
	case config.CursorStorePostgres:
		pg, err := cursor.NewPostgresStore(rt.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		store = pg
	case config.CursorStoreBadger:
		bs, err := cursor.NewBadgerStore(rt.cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		store = bs
	default:
		return nil, fmt.Errorf("unknown cursor store %q", rt.cfg.CursorStore)
	}

	log.Info("Checkpointing cursors to %s store", rt.cfg.CursorStore)
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

// deadLetterSink opens the configured dead-letter sink.
func (rt *runtime) deadLetterSink(ctx context.Context) (deadletter.Sink, error) {
	switch rt.cfg.DeadLetter {
	case config.DeadLetterMemory:
		return deadletter.NewMemorySink(), nil
	case config.DeadLetterTopic:
		return deadletter.NewTopicSink(rt.broker), nil
	case config.DeadLetterPostgres:
		sink, err := deadletter.NewPostgresSink(rt.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			sink.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, sink.Close)
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown dead-letter sink %q", rt.cfg.DeadLetter)
	}
}

// topics returns the consumer group definitions from RELAY_GROUPS_FILE, or the defaults.
func (rt *runtime) topics() ([]config.TopicConfig, error) {
	if rt.cfg.GroupsFile == "" {
		return config.DefaultTopics(), nil
	}
	return config.LoadGroupsFile(rt.cfg.GroupsFile)
}

// consumerRunner builds the dispatchers of every group attached to topic.
func (rt *runtime) consumerRunner(ctx context.Context, topic string) (*consumer.Runner, error) {
	topics, err := rt.topics()
	if err != nil {
		return nil, err
	}
	tc, ok := config.FindTopic(topics, topic)
	if !ok {
		return nil, fmt.Errorf("no consumer groups configured for topic %s", topic)
	}
	groups, err := tc.ConsumerGroups()
	if err != nil {
		return nil, err
	}

	reg := listener.NewRegistry()
	for _, g := range tc.Groups {
		h, err := listener.ByName(g.Handler, log)
		if err != nil {
			return nil, err
		}
		if g.Idempotent {
			if h, err = listener.Idempotent(h, dedupeCacheSize); err != nil {
				return nil, err
			}
		}
		if err := reg.Register(topic, g.GroupID, g.Handler, h); err != nil {
			return nil, err
		}
	}

	store, err := rt.cursorStore(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := rt.deadLetterSink(ctx)
	if err != nil {
		return nil, err
	}

	opts := []consumer.Option{
		consumer.WithLogger(log),
		consumer.WithDeadLetterSink(sink),
	}
	if store != nil {
		opts = append(opts, consumer.WithCursorStore(store))
	}

	for _, b := range reg.Bindings() {
		log.Info("Binding %s/%s -> %s", b.Topic, b.GroupID, b.Name)
	}

	return consumer.FromRegistry(rt.broker, reg, groups, opts...)
}
