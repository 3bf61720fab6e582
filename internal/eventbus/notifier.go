package eventbus

// notifier coalesces consumer wakeups. The channel holds at most one
// token and posting into a full channel is a no-op, so producers never
// block and a burst of emits costs one wake. Because the channel
// persists, a token posted between the consumer's emptiness check and
// its wait is still there when the wait starts; the classic
// check-then-sleep lost wakeup cannot happen.
type notifier struct {
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{}, 1)}
}

// notify posts a wake token unless one is already pending.
func (n *notifier) notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// wait returns the channel the consumer blocks on.
func (n *notifier) wait() <-chan struct{} {
	return n.ch
}
