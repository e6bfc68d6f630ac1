// Package pool wraps sync.Pool with a typed interface.
package pool

import "sync"

// Pool is a typed free list backed by sync.Pool.
type Pool[T any] struct {
	inner sync.Pool
}

// New creates a pool that uses newFn to mint fresh items.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		inner: sync.Pool{
			New: func() any {
				return newFn()
			},
		},
	}
}

// Get takes an item from the pool, minting one if it is empty.
func (p *Pool[T]) Get() T {
	return p.inner.Get().(T)
}

// Put returns an item to the pool.
func (p *Pool[T]) Put(item T) {
	p.inner.Put(item)
}

// NewBytes creates a pool of byte buffers of the given size. Buffers are
// pooled as pointers to avoid an allocation per Put.
func NewBytes(size int) *Pool[*[]byte] {
	return New(func() *[]byte {
		b := make([]byte, size)
		return &b
	})
}
