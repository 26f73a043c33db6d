package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/erp-sync/internal/model"
)

// Errors
var (
	ErrEmptyKey    = errors.New("entity key is empty")
	ErrReservedKey = errors.New("entity key is reserved for the wildcard subscription")
	ErrNilHandler  = errors.New("handler is nil")
)

// Handler is invoked with every frame matching its subscription.
type Handler func(frame model.Frame)

// Unsubscribe removes exactly one subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Stats contains runtime statistics.
type Stats struct {
	Subscriptions int   // Live subscriptions across all keys
	Dispatched    int64 // Frames passed to Dispatch
	Delivered     int64 // Handler invocations that returned normally
	HandlerPanics int64 // Handler invocations that panicked
}

// subscription is one registered handler.
type subscription struct {
	id      uuid.UUID
	key     model.Key
	handler Handler
	active  atomic.Bool
}

// Registry maps subscription keys to handlers. It is safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[model.Key]map[uuid.UUID]*subscription

	dispatched atomic.Int64
	delivered  atomic.Int64
	panics     atomic.Int64
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "registry"),
		subs:   make(map[model.Key]map[uuid.UUID]*subscription),
	}
}

// Subscribe registers handler under key. Entity keys must be non-empty and
// must not spell the wildcard; use model.All for every entity.
func (r *Registry) Subscribe(key model.Key, handler Handler) (Unsubscribe, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	sub := &subscription{
		id:      uuid.New(),
		key:     key,
		handler: handler,
	}
	sub.active.Store(true)

	r.mu.Lock()
	set, ok := r.subs[key]
	if !ok {
		set = make(map[uuid.UUID]*subscription)
		r.subs[key] = set
	}
	set[sub.id] = sub
	r.mu.Unlock()

	r.logger.Debug("subscribed", "key", key.String(), "subscription_id", sub.id)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(sub) })
	}, nil
}

// ValidateKey reports whether key can be subscribed to.
func ValidateKey(key model.Key) error {
	if key.IsAll() {
		return nil
	}
	switch key.Name() {
	case "":
		return ErrEmptyKey
	case model.Wildcard:
		return fmt.Errorf("%w: %q", ErrReservedKey, key.Name())
	}
	return nil
}

// remove deletes sub and prunes its key when the set becomes empty.
func (r *Registry) remove(sub *subscription) {
	sub.active.Store(false)

	r.mu.Lock()
	if set, ok := r.subs[sub.key]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(r.subs, sub.key)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("unsubscribed", "key", sub.key.String(), "subscription_id", sub.id)
}

// Dispatch delivers frame to every handler subscribed to its entity and to
// every wildcard handler. Handlers run on the caller's goroutine in no
// particular order; the handler set is captured when Dispatch starts.
func (r *Registry) Dispatch(frame model.Frame) {
	r.dispatched.Add(1)

	targets := r.match(frame.Entity)
	for _, sub := range targets {
		// Skip handlers unsubscribed earlier in this pass.
		if !sub.active.Load() {
			continue
		}
		r.invoke(sub, frame)
	}
}

// match snapshots the handlers for entity plus the wildcard handlers.
func (r *Registry) match(entity string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var specific map[uuid.UUID]*subscription
	if entity != "" && entity != model.Wildcard {
		specific = r.subs[model.Entity(entity)]
	}
	all := r.subs[model.All]

	out := make([]*subscription, 0, len(specific)+len(all))
	for _, sub := range specific {
		out = append(out, sub)
	}
	for _, sub := range all {
		out = append(out, sub)
	}
	return out
}

// invoke runs one handler, recovering from panics.
func (r *Registry) invoke(sub *subscription, frame model.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.logger.Error("subscriber panicked",
				"key", sub.key.String(),
				"entity", frame.Entity,
				"subscription_id", sub.id,
				"panic", rec,
			)
		}
	}()

	sub.handler(frame)
	r.delivered.Add(1)
}

// Count returns the number of live subscriptions under key.
func (r *Registry) Count(key model.Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key])
}

// Stats returns current statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	total := 0
	for _, set := range r.subs {
		total += len(set)
	}
	r.mu.RUnlock()

	return Stats{
		Subscriptions: total,
		Dispatched:    r.dispatched.Load(),
		Delivered:     r.delivered.Load(),
		HandlerPanics: r.panics.Load(),
	}
}
