package eventbus

import "sync/atomic"

// queue is an intrusive multi-producer single-consumer linked list.
// push is wait-free: one atomic swap claims the slot and one store
// links it in. The swap order is the global FIFO order. pop must only
// run on the single consumer goroutine.
//
// Between a producer's swap and its link store the queue can look
// empty to the consumer even though the swap already fixed the event's
// position. That is safe here because every producer wakes the
// consumer after linking, so the consumer re-checks.
type queue struct {
	head atomic.Pointer[qnode] // most recently pushed node
	tail *qnode                // consumer position, starts at the stub
}

type qnode struct {
	next atomic.Pointer[qnode]
	env  Envelope
}

func newQueue() *queue {
	q := &queue{}
	stub := &qnode{}
	q.head.Store(stub)
	q.tail = stub
	return q
}

// push enqueues an envelope. Safe from any goroutine, never blocks.
func (q *queue) push(env Envelope) {
	n := &qnode{env: env}
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// pop dequeues the oldest linked envelope.
func (q *queue) pop() (Envelope, bool) {
	next := q.tail.next.Load()
	if next == nil {
		return Envelope{}, false
	}
	q.tail = next
	env := next.env
	next.env = Envelope{} // release the handle once consumed
	return env, true
}
