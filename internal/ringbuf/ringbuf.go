package ringbuf

import "iter"

// Ring is a fixed-capacity buffer that overwrites its oldest element once
// full. Writes never fail and never block; history simply slides forward.
// It is not safe for concurrent use, callers own their synchronization.
type Ring[T any] struct {
	data []T
	tail uint64 // increments without bound, wraps only when indexing
}

// New constructs an empty ring with the given capacity.
// It panics if capacity is not positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Cap reports the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Len reports the current number of elements.
func (r *Ring[T]) Len() int {
	if r.tail > uint64(len(r.data)) {
		return len(r.data)
	}
	return int(r.tail)
}

// IsEmpty reports whether the ring holds no elements.
func (r *Ring[T]) IsEmpty() bool {
	return r.tail == 0
}

// head returns the physical position of the oldest element.
func (r *Ring[T]) head() int {
	n := uint64(len(r.data))
	if r.tail > n {
		return int((r.tail - n) % n)
	}
	return 0
}

// phys maps a logical index (0 = oldest) to a physical position.
func (r *Ring[T]) phys(logical int) int {
	return (r.head() + logical) % len(r.data)
}

// Push appends a value at the newest side, overwriting the oldest
// element when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.data[r.tail%uint64(len(r.data))] = v
	r.tail++
}

// Append pushes each value in order.
func (r *Ring[T]) Append(vs ...T) {
	for _, v := range vs {
		r.Push(v)
	}
}

// Clear empties the ring. Prior contents are overwritten lazily by
// subsequent pushes.
func (r *Ring[T]) Clear() {
	r.tail = 0
}

// Get returns the element at the given logical index, 0 being the oldest.
func (r *Ring[T]) Get(index int) (T, bool) {
	if index < 0 || index >= r.Len() {
		var zero T
		return zero, false
	}
	return r.data[r.phys(index)], true
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	if r.IsEmpty() {
		var zero T
		return zero, false
	}
	return r.Get(r.Len() - 1)
}

// Slices returns the contents as two views in logical order, older
// elements first. The second view is empty unless the storage has
// wrapped past the physical end. No copying takes place; the views
// alias the ring and are invalidated by the next mutation.
func (r *Ring[T]) Slices() ([]T, []T) {
	n := uint64(len(r.data))
	if r.tail == 0 {
		return nil, nil
	}
	if r.tail <= n {
		return r.data[:r.tail], nil
	}
	head := (r.tail - n) % n
	return r.data[head:], r.data[:head]
}

// All iterates from oldest to newest. The sequence is restartable and
// stops early if the yield function returns false.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		older, newer := r.Slices()
		for _, v := range older {
			if !yield(v) {
				return
			}
		}
		for _, v := range newer {
			if !yield(v) {
				return
			}
		}
	}
}

// TruncateFront keeps only the most recent count elements, discarding
// the rest. Keeping at least the current length is a no-op; keeping
// zero degenerates to Clear. The survivors are rotated into place
// without allocating.
func (r *Ring[T]) TruncateFront(count int) {
	if count >= r.Len() {
		return
	}
	if count <= 0 {
		r.Clear()
		return
	}
	n := uint64(len(r.data))
	oldest := int((r.tail - uint64(count)) % n)
	rotateLeft(r.data, oldest)
	r.tail = uint64(count)
}

// rotateLeft moves s[k] to s[0] in place via triple reversal.
func rotateLeft[T any](s []T, k int) {
	if k == 0 {
		return
	}
	reverse(s[:k])
	reverse(s[k:])
	reverse(s)
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
