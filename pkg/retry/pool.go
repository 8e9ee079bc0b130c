package retry

// Pool is a fixed set of resources consumed round-robin, one per attempt.
// Attempt i receives element i % len. A Pool is not safe for concurrent use;
// each polling loop owns its own Pool.
type Pool[T any] struct {
	items []T
	next  int
}

// NewPool creates a pool over the given items. The slice must be non-empty.
func NewPool[T any](items []T) *Pool[T] {
	return &Pool[T]{items: items}
}

// Next returns the next resource in round-robin order.
func (p *Pool[T]) Next() T {
	item := p.items[p.next%len(p.items)]
	p.next++
	return item
}

// Len returns the number of resources in the pool.
func (p *Pool[T]) Len() int {
	return len(p.items)
}
