package eventbus

import (
	"context"
	"sync"
)

// ProducerGroup tracks producer handles that should be closed
// together. Closing every producer is what lets the consumer observe
// shutdown, so sessions register their handles here and the owner
// closes the group once.
type ProducerGroup struct {
	mu        sync.Mutex
	producers []*Producer
}

// Add registers producers for bulk close. Nil handles are ignored.
func (g *ProducerGroup) Add(producers ...*Producer) {
	if g == nil || len(producers) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range producers {
		if p != nil {
			g.producers = append(g.producers, p)
		}
	}
}

// CloseAll closes every tracked producer and clears the group.
func (g *ProducerGroup) CloseAll() {
	if g == nil {
		return
	}

	g.mu.Lock()
	producers := g.producers
	g.producers = nil
	g.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
}

// SessionLifecycle centralises the plumbing shared by event-producing
// services: a start context, tracked producer handles, worker
// goroutines, and a bounded wait on shutdown.
type SessionLifecycle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	producers ProducerGroup
	wg        sync.WaitGroup
}

// Start initialises the lifecycle context from the provided parent.
func (l *SessionLifecycle) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
}

// Context returns the active lifecycle context.
func (l *SessionLifecycle) Context() context.Context {
	return l.ctx
}

// AddProducers registers handles to close on shutdown.
func (l *SessionLifecycle) AddProducers(producers ...*Producer) {
	l.producers.Add(producers...)
}

// Go runs a worker goroutine tracked by the lifecycle wait group.
func (l *SessionLifecycle) Go(worker func(ctx context.Context)) {
	if worker == nil {
		return
	}
	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()
		worker(ctx)
	}(l.ctx)
}

// Stop cancels the context and closes every tracked producer.
func (l *SessionLifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.producers.CloseAll()
}

// Wait blocks until all lifecycle workers complete or ctx is done.
func (l *SessionLifecycle) Wait(ctx context.Context) error {
	return WaitForWorkers(ctx, &l.wg)
}

// Shutdown combines Stop and Wait.
func (l *SessionLifecycle) Shutdown(ctx context.Context) error {
	l.Stop()
	return l.Wait(ctx)
}

// WaitForWorkers waits for the wait group or returns when ctx is done.
func WaitForWorkers(ctx context.Context, wg *sync.WaitGroup) error {
	if wg == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
