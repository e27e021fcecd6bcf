// Package ring implements fixed-capacity circular buffers whose capacity is a
// power of two, so wraparound is a bitmask rather than a modulo.
package ring

import (
	"errors"
	"fmt"
)

// ErrNotPowerOfTwo is returned when a capacity is zero or not a power of two.
var ErrNotPowerOfTwo = errors.New("ring capacity must be a power of two")

// Ring is a circular history of values. Push writes the newest value; At reads
// back by delay, where delay 0 is the newest.
type Ring[T any] struct {
	buf  []T
	mask int
	head int // index of the newest value
}

// New creates a ring holding capacity values, all zero.
func New[T any](capacity int) (*Ring[T], error) {
	if !IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: %d", ErrNotPowerOfTwo, capacity)
	}
	return &Ring[T]{
		buf:  make([]T, capacity),
		mask: capacity - 1,
	}, nil
}

// NewAtLeast creates a ring whose capacity is the smallest power of two >= n.
func NewAtLeast[T any](n int) *Ring[T] {
	r, _ := New[T](NextPowerOfTwo(n))
	return r
}

// Push stores v as the newest value, overwriting the oldest.
func (r *Ring[T]) Push(v T) {
	r.head = (r.head + 1) & r.mask
	r.buf[r.head] = v
}

// At returns the value pushed delay pushes ago. Delays wrap at the capacity.
func (r *Ring[T]) At(delay int) T {
	return r.buf[(r.head-delay)&r.mask]
}

// Len returns the capacity.
func (r *Ring[T]) Len() int {
	return len(r.buf)
}

// Reset zeroes every slot.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1).
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
