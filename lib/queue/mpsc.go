package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks
type LockFreeMPSC[T interface{}] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// capacity <= 0 means unbounded
	capacity int64
	size     atomic.Int64

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new unbounded multi-producer single-consumer queue
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	return NewBoundedMPSC[T](0)
}

// NewBoundedMPSC creates a new multi-producer single-consumer queue that holds at most
// capacity items that have not yet been received. A capacity <= 0 creates an unbounded queue.
func NewBoundedMPSC[T interface{}](capacity int) *LockFreeMPSC[T] {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out:      make(chan *T),
		capacity: int64(capacity),
	}

	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the value is nil, the queue is closed or
// the queue is bounded and full.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {

	if value == nil {
		return false
	}

	if q.closed.Load() {
		return false
	}

	// reserve a slot first, so concurrent producers cannot overshoot the bound
	if n := q.size.Add(1); q.capacity > 0 && n > q.capacity {
		q.size.Add(-1)
		return false
	}

	newNode := &node[T]{value: value}

	var tailNode *node[T]
	var backoff uint8 = 0

	for {
		tailNode = q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS may fail if another producer already moved the tail, which is fine
				q.tail.CompareAndSwap(tailNode, newNode)

				// Lock around the signal so a consumer between its check and Wait cannot miss it
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()

				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention:
		  - few retries: spin with Gosched to avoid scheduling overhead
		  - more retries: yield once per round and let other producers finish
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume continuously sends items from the linked list to the output channel and frees memory
func (q *LockFreeMPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break
			}

			hasItems = true

			value := next.value

			// move head pointer (free up memory)
			q.head.Store(next)

			q.out <- value
			q.size.Add(-1)

			// help go gc - safe to clear after sending
			next.value = nil
		}

		// Exit if closed and no more items
		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			// Double-check condition after acquiring lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// The channel is closed once the queue is closed and all items have been delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered to the consumer.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items pushed but not yet received.
// The value is a snapshot and may be stale under concurrent use.
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.size.Load())
}

// Cap returns the capacity of the queue, 0 for an unbounded queue.
func (q *LockFreeMPSC[T]) Cap() int {
	if q.capacity <= 0 {
		return 0
	}
	return int(q.capacity)
}
