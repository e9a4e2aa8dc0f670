// Package slot provides the single-value hand-off container shared between
// the console and the router session.
package slot

import "sync"

// Sink is the write side of a slot.
type Sink[T any] interface {
	Put(v T)
}

// Source is the read side of a slot.
type Source[T any] interface {
	Take() (T, bool)
}

// Slot holds at most one pending value. A Put overwrites any unread value;
// Take removes it. Neither call blocks beyond the internal mutex.
type Slot[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
}

// New returns an empty slot.
func New[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Put stores v, discarding any value that was not taken yet.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	s.value = v
	s.full = true
	s.mu.Unlock()
}

// Take removes and returns the pending value. The second result is false
// when the slot was empty.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.full = false
	return v, true
}

// Len reports 1 when a value is pending, else 0.
func (s *Slot[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return 1
	}
	return 0
}
