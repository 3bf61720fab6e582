package eventbus

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

// defaultIdleTimeout bounds how long an idle Recv waits before
// re-checking producer liveness.
const defaultIdleTimeout = time.Second

// Bus is the event channel between device sessions and the single
// dispatcher. Producers attach with Producer and emit without ever
// blocking or failing; exactly one consumer drains with Recv. The
// global FIFO order is fixed the moment an emit claims its queue slot.
type Bus struct {
	queue     *queue
	wake      *notifier
	producers atomic.Int64
	idle      time.Duration
	logger    *log.Logger
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for dropped-emit warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithIdleTimeout overrides the liveness re-check interval of an idle
// Recv. Tests shorten it.
func WithIdleTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.idle = d
		}
	}
}

// New constructs an empty bus.
func New(opts ...BusOption) *Bus {
	b := &Bus{
		queue:  newQueue(),
		wake:   newNotifier(),
		idle:   defaultIdleTimeout,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Producer attaches a new producer handle. Recv keeps running as long
// as at least one handle remains open.
func (b *Bus) Producer() *Producer {
	b.producers.Add(1)
	return &Producer{bus: b}
}

// Recv returns the next envelope in global FIFO order. It reports
// false only once every producer handle has closed and the queue is
// drained; that is the consumer's sole exit condition. While idle it
// wakes on the first emit, or after the idle timeout to re-check
// liveness.
func (b *Bus) Recv() (Envelope, bool) {
	for {
		if env, ok := b.queue.pop(); ok {
			return env, true
		}
		wake := b.wake.wait()
		if env, ok := b.queue.pop(); ok {
			return env, true
		}
		if b.producers.Load() == 0 {
			// Every emit happens before its producer's close, so at
			// count zero one more drain observes everything.
			if env, ok := b.queue.pop(); ok {
				return env, true
			}
			return Envelope{}, false
		}
		select {
		case <-wake:
		case <-time.After(b.idle):
		}
	}
}

// Producer is one attached event source. Emits from multiple
// goroutines may share a handle; Close must not race Emit on the same
// handle.
type Producer struct {
	bus    *Bus
	closed atomic.Bool
}

// Emit queues one event for the device. It cannot fail and never
// blocks. The event's position in the global order is fixed by the
// time Emit returns.
func (p *Producer) Emit(dev *airpods.Device, ev Event) {
	if p.closed.Load() {
		p.bus.logger.Printf("[eventbus] dropped %s emit on closed producer", ev.Kind())
		return
	}
	p.bus.queue.push(Envelope{Device: dev, Event: ev})
	p.bus.wake.notify()
}

// Close detaches the producer. Idempotent. Closing the last handle
// wakes the consumer so it observes shutdown promptly.
func (p *Producer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.bus.producers.Add(-1) == 0 {
		p.bus.wake.notify()
	}
}
