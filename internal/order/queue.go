package order

import "context"

// ManualQueue buffers operator-submitted signals ahead of OrderExecutor.
// Generalized from the teacher's order.Queue (which buffered a single
// Order type) to buffer Signal, so a manual order takes exactly the same
// shape as an engine-generated one and runs through the same
// Execute pipeline — same kill-switch, risk, and idempotency guarantees
// (spec §12 supplemented feature).
type ManualQueue struct {
	ch chan Signal
}

// NewManualQueue buffers up to size pending manual signals.
func NewManualQueue(size int) *ManualQueue {
	if size <= 0 {
		size = 100
	}
	return &ManualQueue{ch: make(chan Signal, size)}
}

// Enqueue buffers signal for the drain loop. Blocks if the queue is full.
func (q *ManualQueue) Enqueue(signal Signal) {
	q.ch <- signal
}

// Close stops further enqueues; Drain exits once the channel is empty.
func (q *ManualQueue) Close() {
	close(q.ch)
}

// Drain consumes signals with handler until ctx is canceled or the queue
// is closed.
func (q *ManualQueue) Drain(ctx context.Context, handler func(Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-q.ch:
			if !ok {
				return
			}
			handler(signal)
		}
	}
}
