// Package engine moves captured events from producer callbacks into the
// durable stores.
//
// ARCHITECTURE:
//
// Mailbox:
// Queue is a multi-producer, single-consumer mailbox: one mutex and one
// condition variable guarding a pending Batch with one slice per event
// kind. Producers never block on it. Each producer owns a Producer, an
// explicit local buffer; a push appends locally and then makes one
// TryLock attempt to hand the whole buffer over. When the lock is busy the
// events stay in the producer and ride along with its next push. Delivery
// can be late by one invocation but is never dropped.
//
// Consumer:
// Engine.Run is the only consumer. It waits on the condition variable until
// any kind is non-empty, swaps the whole pending batch out under one lock
// acquisition and merges it with the lock released. Each store is merged
// with TryLock as well: a busy store keeps its events in the engine's
// carry-over and the engine retries after a short backoff; an unavailable
// store keeps them until new events arrive or Kick is called.
//
// ORDERING:
//   - Per producer and per kind, events reach the store in push order.
//   - Nothing is promised across kinds or across producers.
//
// SHUTDOWN:
// Cancelling the context passed to Run closes the queue, which wakes every
// waiter. Run then merges what is left with blocking locks and returns.
package engine
