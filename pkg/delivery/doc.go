// Package delivery buffers encoded records and ships them to whichever
// transport handle is currently attached.
//
// The channel is best-effort, order-preserving, and bounded: frames queue in
// FIFO order while the transport is unavailable, the oldest frame is evicted
// when the queue is full, and a readiness transition on the attached handle
// flushes the backlog without any caller polling. Delivery completeness is
// sacrificed before memory: sustained disconnection loses the oldest frames,
// never grows the queue.
package delivery
