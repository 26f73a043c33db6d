package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/rickgao/erp-sync/internal/model"
	"github.com/rickgao/erp-sync/internal/registry"
)

// ErrBindingClosed is returned by Rebind after Close.
var ErrBindingClosed = errors.New("binding closed")

// Binding is one active Sync registration.
type Binding struct {
	client   *Client
	onUpdate registry.Handler
	refresh  func()

	mu     sync.Mutex
	key    model.Key
	unsub  registry.Unsubscribe
	closed bool
	done   chan struct{}
}

// Sync binds onUpdate, followed by refresh when non-nil, to key until ctx is
// done or Close is called. It makes one Connect call on activation. Closing
// the binding leaves the shared connection open.
func (c *Client) Sync(ctx context.Context, key model.Key, onUpdate registry.Handler, refresh func()) (*Binding, error) {
	if onUpdate == nil && refresh == nil {
		return nil, registry.ErrNilHandler
	}
	if err := registry.ValidateKey(key); err != nil {
		return nil, err
	}

	b := &Binding{
		client:   c,
		onUpdate: onUpdate,
		refresh:  refresh,
		done:     make(chan struct{}),
	}

	c.Connect()

	b.mu.Lock()
	err := b.subscribeLocked(key)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.done:
		}
	}()

	return b, nil
}

// Key returns the key the binding currently listens on.
func (b *Binding) Key() model.Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}

// IsConnected reports whether the shared connection is open.
func (b *Binding) IsConnected() bool {
	return b.client.IsConnected()
}

// Rebind moves the binding to key. The old registration is removed before
// the new one is added so no frame is delivered twice.
func (b *Binding) Rebind(key model.Key) error {
	if err := registry.ValidateKey(key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBindingClosed
	}
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}

	b.client.Connect()
	return b.subscribeLocked(key)
}

// Close removes the registration. Safe to call more than once.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	close(b.done)
}

func (b *Binding) subscribeLocked(key model.Key) error {
	unsub, err := b.client.registry.Subscribe(key, b.handle)
	if err != nil {
		return err
	}
	b.key = key
	b.unsub = unsub
	return nil
}

// handle runs onUpdate and then refresh. The payload is only a change signal,
// so refresh lets the consumer refetch authoritative state.
func (b *Binding) handle(frame model.Frame) {
	if b.onUpdate != nil {
		b.onUpdate(frame)
	}
	if b.refresh != nil {
		b.refresh()
	}
}
