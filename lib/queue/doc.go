// Package queue provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
// The relay uses it as the request queue between submitters and the single dispatcher
// goroutine of a connection manager.
//
// Features and Guarantees:
//
//   - Lock-Free: producers append with atomic operations, even under high contention
//   - Unbounded or Bounded: NewLockFreeMPSC grows as needed, NewBoundedMPSC rejects pushes
//     once the given number of undelivered items is reached
//   - Thread-Safe writes: any number of goroutines may call Push() concurrently
//   - Single Consumer: exactly one goroutine consumes values via the Recv() channel
//   - Ordering: items from one producer are delivered in push order. Across producers the
//     order is the order in which the pushes completed, not the order in which they started.
//   - Close: items pushed before Close are still delivered, then Recv() is closed
package queue
