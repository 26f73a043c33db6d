package registry

import (
	"sync"
)

// Buffer is a thread-safe FIFO that doubles its capacity when it reaches 70%
// full, up to a ceiling. At the ceiling the oldest item is dropped so Send
// never blocks the dispatch path.
type Buffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	max      int
	closed   bool
	ready    chan struct{}

	// Stats
	enqueued int64
	dequeued int64
	dropped  int64
	resizes  int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count       int
	Capacity    int
	MaxCapacity int
	Enqueued    int64
	Dequeued    int64
	Dropped     int64
	ResizeCount int
}

// NewBuffer creates a buffer with the given initial and maximum capacity.
// A maxCapacity below initialCapacity is raised to it.
func NewBuffer[T any](initialCapacity, maxCapacity int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	return &Buffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		max:      maxCapacity,
		ready:    make(chan struct{}, 1),
	}
}

// Send appends item. It returns false if the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && b.capacity < b.max {
		b.grow()
	}

	if b.count == b.capacity {
		b.popLocked()
		b.dequeued-- // a drop is not a delivery
		b.dropped++
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.enqueued++

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready returns a channel that receives a value after Send when the consumer
// may have work. Consumers drain with DrainTo until it returns nothing.
func (b *Buffer[T]) Ready() <-chan struct{} {
	return b.ready
}

// tryReceive removes the oldest item without blocking.
func (b *Buffer[T]) tryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// DrainTo removes up to max items (all items when max <= 0) in FIFO order.
func (b *Buffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// Close stops accepting items. Items already queued can still be drained.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.ready)
}

// Closed reports whether Close was called.
func (b *Buffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:       b.count,
		Capacity:    b.capacity,
		MaxCapacity: b.max,
		Enqueued:    b.enqueued,
		Dequeued:    b.dequeued,
		Dropped:     b.dropped,
		ResizeCount: b.resizes,
	}
}

// popLocked removes the head item. Must be called with lock held and count > 0.
func (b *Buffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.dequeued++
	return item
}

// grow doubles the capacity, capped at max. Must be called with lock held.
func (b *Buffer[T]) grow() {
	newCapacity := b.capacity * 2
	if newCapacity > b.max {
		newCapacity = b.max
	}
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count % newCapacity
	b.capacity = newCapacity
	b.resizes++
}
