package sensormux

import (
	"reflect"
	"sync/atomic"
)

// Listener consumes readings. Implementations must be comparable so the same
// listener can later be removed; pointer receivers are the usual choice.
// A returned error is logged and counted but never reaches the producer.
type Listener[T any] interface {
	OnReading(reading T) error
}

// ListenerFunc adapts a function to a Listener. Each call to NewListenerFunc
// yields a distinct identity.
type ListenerFunc[T any] struct {
	fn func(T) error
}

// NewListenerFunc wraps fn in a Listener.
func NewListenerFunc[T any](fn func(T) error) *ListenerFunc[T] {
	return &ListenerFunc[T]{fn: fn}
}

// OnReading calls the wrapped function.
func (f *ListenerFunc[T]) OnReading(reading T) error {
	return f.fn(reading)
}

// entry is one registration of a listener. Deliveries already queued for an
// entry are skipped once it is deactivated, so a re-added listener gets a
// fresh entry and never sees readings queued for the old one.
type entry[T any] struct {
	listener Listener[T]
	active   atomic.Bool
}

// registry is an insertion-ordered set of listener entries. It is
// copy-on-write: every mutation produces a new slice, so a snapshot handed
// out by entries stays stable for as long as a reader holds it.
type registry[T any] struct {
	list []*entry[T]
}

func checkListener[T any](l Listener[T]) error {
	if l == nil {
		return ErrNilListener
	}
	if v := reflect.ValueOf(l); v.Kind() == reflect.Pointer && v.IsNil() {
		return ErrNilListener
	}
	if !reflect.TypeOf(l).Comparable() {
		return ErrIncomparableListener
	}
	return nil
}

func (r registry[T]) indexOf(l Listener[T]) int {
	for i, e := range r.list {
		if e.listener == l {
			return i
		}
	}
	return -1
}

func (r registry[T]) contains(l Listener[T]) bool {
	return r.indexOf(l) >= 0
}

func (r registry[T]) len() int {
	return len(r.list)
}

// with returns a registry that also holds e, appended last.
func (r registry[T]) with(e *entry[T]) registry[T] {
	list := make([]*entry[T], 0, len(r.list)+1)
	list = append(list, r.list...)
	list = append(list, e)
	return registry[T]{list: list}
}

// without returns a registry lacking l and the entry that was removed.
func (r registry[T]) without(l Listener[T]) (registry[T], *entry[T]) {
	i := r.indexOf(l)
	if i < 0 {
		return r, nil
	}
	list := make([]*entry[T], 0, len(r.list)-1)
	list = append(list, r.list[:i]...)
	list = append(list, r.list[i+1:]...)
	return registry[T]{list: list}, r.list[i]
}
