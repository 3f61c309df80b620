package listener

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrDuplicateBinding = errors.New("handler already bound")

// Binding associates one (topic, group) pair with its handler.
type Binding struct {
	Topic   string
	GroupID string
	Name    string
	Handler Handler
}

// Registry maps (topic, groupID) to exactly one handler. It is populated
// during startup, before any dispatcher runs.
type Registry struct {
	mu       sync.RWMutex
	bindings map[bindingKey]Binding
}

type bindingKey struct {
	topic   string
	groupID string
}

func NewRegistry() *Registry {
	return &Registry{bindings: make(map[bindingKey]Binding)}
}

// Register binds handler to (topic, groupID).
func (r *Registry) Register(topic, groupID, name string, handler Handler) error {
	if topic == "" || groupID == "" {
		return fmt.Errorf("topic and group are required")
	}
	if handler == nil {
		return fmt.Errorf("nil handler for %s/%s", topic, groupID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey{topic: topic, groupID: groupID}
	if existing, ok := r.bindings[key]; ok {
		return fmt.Errorf("%w: %s/%s is bound to %q", ErrDuplicateBinding, topic, groupID, existing.Name)
	}
	r.bindings[key] = Binding{Topic: topic, GroupID: groupID, Name: name, Handler: handler}
	return nil
}

// MustRegister is Register that panics on error, for static wiring in main.
func (r *Registry) MustRegister(topic, groupID, name string, handler Handler) {
	if err := r.Register(topic, groupID, name, handler); err != nil {
		panic(err)
	}
}

// Lookup returns the binding for (topic, groupID).
func (r *Registry) Lookup(topic, groupID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[bindingKey{topic: topic, groupID: groupID}]
	return b, ok
}

// Bindings returns all bindings sorted by topic, then group.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}
