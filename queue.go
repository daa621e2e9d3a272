package librehsm

// Queue is a fixed-capacity FIFO ring buffer. Its storage is allocated once
// by NewQueue; Push never grows it.
type Queue[T any] struct {
	data  []T
	first int
	count int
}

// NewQueue creates a queue holding at most capacity elements
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{data: make([]T, capacity)}
}

// Len returns the number of queued elements
func (q *Queue[T]) Len() int { return q.count }

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int { return len(q.data) }

// Empty reports whether the queue holds no elements
func (q *Queue[T]) Empty() bool { return q.count == 0 }

// Full reports whether another Push would fail
func (q *Queue[T]) Full() bool { return q.count == len(q.data) }

// Push appends v, or returns ErrQueueFull leaving the queue unchanged
func (q *Queue[T]) Push(v T) error {
	if q.Full() {
		return ErrQueueFull
	}
	q.data[(q.first+q.count)%len(q.data)] = v
	q.count++
	return nil
}

// Peek returns the head element. Check Len first: Peek panics on an empty queue.
func (q *Queue[T]) Peek() T {
	if q.count == 0 {
		panic("librehsm: Peek on empty queue")
	}
	return q.data[q.first]
}

// Pop removes and returns the head element. Check Len first: Pop panics on
// an empty queue.
func (q *Queue[T]) Pop() T {
	v := q.Peek()
	var zero T
	q.data[q.first] = zero
	q.first = (q.first + 1) % len(q.data)
	q.count--
	return v
}

// Reset drops all queued elements
func (q *Queue[T]) Reset() {
	var zero T
	for i := range q.data {
		q.data[i] = zero
	}
	q.first = 0
	q.count = 0
}
