package consumer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"kafka-relay/src/broker"
	"kafka-relay/src/listener"
)

// Runner runs a set of dispatchers, one goroutine each. A dispatcher that
// fails does not stop the others.
type Runner struct {
	dispatchers []*Dispatcher
}

// NewRunner creates a runner for the given dispatchers.
func NewRunner(dispatchers ...*Dispatcher) *Runner {
	return &Runner{dispatchers: dispatchers}
}

// FromRegistry builds one dispatcher per group, taking each group's handler
// from reg. Every group must have a binding.
func FromRegistry(brk broker.Broker, reg *listener.Registry, groups []GroupConfig, opts ...Option) (*Runner, error) {
	r := &Runner{}
	for _, g := range groups {
		binding, ok := reg.Lookup(g.Topic, g.GroupID)
		if !ok {
			return nil, fmt.Errorf("no handler bound to %s/%s", g.Topic, g.GroupID)
		}
		d, err := NewDispatcher(brk, g, binding.Handler, opts...)
		if err != nil {
			return nil, err
		}
		r.dispatchers = append(r.dispatchers, d)
	}
	return r, nil
}

// Dispatchers returns the managed dispatchers.
func (r *Runner) Dispatchers() []*Dispatcher {
	return r.dispatchers
}

// Run starts every dispatcher and blocks until all of them have returned.
// Cancellation is not reported as an error; the first other failure is.
func (r *Runner) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, d := range r.dispatchers {
		g.Go(func() error {
			err := d.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("group %s: %w", d.GroupID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop detaches every dispatcher.
func (r *Runner) Stop() {
	for _, d := range r.dispatchers {
		d.Stop()
	}
}
