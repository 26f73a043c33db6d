package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/erp-sync/internal/model"
)

func update(entity string, id int) model.Frame {
	return model.Frame{
		Kind:    model.KindDataUpdate,
		Entity:  entity,
		Payload: map[string]any{"type": "data_update", "entity": entity, "id": float64(id)},
	}
}

func collector() (Handler, func() []model.Frame) {
	var mu sync.Mutex
	var got []model.Frame
	h := func(f model.Frame) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	}
	return h, func() []model.Frame {
		mu.Lock()
		defer mu.Unlock()
		return append([]model.Frame(nil), got...)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	r := New(nil)

	_, err := r.Subscribe(model.Entity("orders"), nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = r.Subscribe(model.Entity(""), func(model.Frame) {})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = r.Subscribe(model.Entity(model.Wildcard), func(model.Frame) {})
	assert.ErrorIs(t, err, ErrReservedKey)

	assert.Equal(t, 0, r.Stats().Subscriptions)
}

func TestDispatch_EntityAndWildcard(t *testing.T) {
	r := New(nil)

	ordersH, orders := collector()
	invoicesH, invoices := collector()
	allH, all := collector()

	_, err := r.Subscribe(model.Entity("orders"), ordersH)
	require.NoError(t, err)
	_, err = r.Subscribe(model.Entity("invoices"), invoicesH)
	require.NoError(t, err)
	_, err = r.Subscribe(model.All, allH)
	require.NoError(t, err)

	r.Dispatch(update("orders", 42))

	require.Len(t, orders(), 1)
	assert.Equal(t, "42", orders()[0].ID())
	assert.Empty(t, invoices())
	require.Len(t, all(), 1)
	assert.Equal(t, "orders", all()[0].Entity)
}

func TestDispatch_NoSubscribers(t *testing.T) {
	r := New(nil)
	assert.NotPanics(t, func() { r.Dispatch(update("products", 1)) })

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Dispatched)
	assert.Equal(t, int64(0), stats.Delivered)
}

func TestDispatch_WildcardEntityFrame(t *testing.T) {
	r := New(nil)

	ordersH, orders := collector()
	allH, all := collector()
	_, err := r.Subscribe(model.Entity("orders"), ordersH)
	require.NoError(t, err)
	_, err = r.Subscribe(model.All, allH)
	require.NoError(t, err)

	r.Dispatch(update(model.Wildcard, 1))
	r.Dispatch(update("", 2))

	assert.Empty(t, orders())
	assert.Len(t, all(), 2)
}

func TestUnsubscribe_RemovesExactlyOne(t *testing.T) {
	r := New(nil)

	var a, b atomic.Int32
	unsubA, err := r.Subscribe(model.Entity("orders"), func(model.Frame) { a.Add(1) })
	require.NoError(t, err)
	_, err = r.Subscribe(model.Entity("orders"), func(model.Frame) { b.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 2, r.Count(model.Entity("orders")))

	unsubA()
	unsubA()
	assert.Equal(t, 1, r.Count(model.Entity("orders")))

	r.Dispatch(update("orders", 1))
	assert.Equal(t, int32(0), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestUnsubscribe_SameHandlerTwice(t *testing.T) {
	r := New(nil)

	var calls atomic.Int32
	h := func(model.Frame) { calls.Add(1) }

	unsub1, err := r.Subscribe(model.Entity("orders"), h)
	require.NoError(t, err)
	_, err = r.Subscribe(model.Entity("orders"), h)
	require.NoError(t, err)

	r.Dispatch(update("orders", 1))
	assert.Equal(t, int32(2), calls.Load())

	unsub1()
	r.Dispatch(update("orders", 2))
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnsubscribe_PrunesEmptyKey(t *testing.T) {
	r := New(nil)

	unsub, err := r.Subscribe(model.Entity("orders"), func(model.Frame) {})
	require.NoError(t, err)
	unsub()

	r.mu.RLock()
	_, ok := r.subs[model.Entity("orders")]
	r.mu.RUnlock()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Stats().Subscriptions)
}

func TestDispatch_PanicIsolation(t *testing.T) {
	r := New(nil)

	var after atomic.Int32
	_, err := r.Subscribe(model.Entity("orders"), func(model.Frame) { panic("boom") })
	require.NoError(t, err)
	_, err = r.Subscribe(model.Entity("orders"), func(model.Frame) { after.Add(1) })
	require.NoError(t, err)
	_, err = r.Subscribe(model.All, func(model.Frame) { after.Add(1) })
	require.NoError(t, err)

	assert.NotPanics(t, func() { r.Dispatch(update("orders", 1)) })
	assert.Equal(t, int32(2), after.Load())

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.HandlerPanics)
	assert.Equal(t, int64(2), stats.Delivered)
}

func TestDispatch_UnsubscribeDuringDispatch(t *testing.T) {
	r := New(nil)

	var unsubB Unsubscribe
	var bCalls atomic.Int32

	// Handler order within a key is unspecified, so A unsubscribes B and B
	// either ran already or must be skipped.
	_, err := r.Subscribe(model.Entity("orders"), func(model.Frame) {
		unsubB()
	})
	require.NoError(t, err)
	unsubB, err = r.Subscribe(model.Entity("orders"), func(model.Frame) { bCalls.Add(1) })
	require.NoError(t, err)

	assert.NotPanics(t, func() { r.Dispatch(update("orders", 1)) })
	assert.LessOrEqual(t, bCalls.Load(), int32(1))

	r.Dispatch(update("orders", 2))
	assert.LessOrEqual(t, bCalls.Load(), int32(1))
	assert.Equal(t, 1, r.Count(model.Entity("orders")))
}

func TestDispatch_NoReplay(t *testing.T) {
	r := New(nil)

	r.Dispatch(update("orders", 1))

	h, got := collector()
	_, err := r.Subscribe(model.Entity("orders"), h)
	require.NoError(t, err)
	assert.Empty(t, got())

	r.Dispatch(update("orders", 2))
	require.Len(t, got(), 1)
	assert.Equal(t, "2", got()[0].ID())
}

func TestRegistry_ConcurrentSubscribeDispatch(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unsub, err := r.Subscribe(model.Entity("orders"), func(model.Frame) {})
				if err == nil {
					unsub()
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Dispatch(update("orders", j))
			}
		}()
	}
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, 0, stats.Subscriptions)
	assert.Equal(t, int64(800), stats.Dispatched)
}
