package binding

import (
	"sync"
	"sync/atomic"
)

// oneShot carries a consumer callback across to the loop. It is safe to
// invoke from any goroutine; only the first invocation is delivered and the
// callback reference is dropped right after it.
type oneShot[T any] struct {
	loop *Loop
	used atomic.Bool
	fn   func(T)
}

func newOneShot[T any](loop *Loop, fn func(T)) *oneShot[T] {
	return &oneShot[T]{loop: loop, fn: fn}
}

// invoke reports whether the call was queued.
func (o *oneShot[T]) invoke(v T) bool {
	if !o.used.CompareAndSwap(false, true) {
		return false
	}
	fn := o.fn
	o.fn = nil
	return o.loop.Post(func() { fn(v) })
}

// listener is a long-lived callback registration. After release no call is
// queued, and a call queued before release is skipped when it reaches the
// loop.
type listener[T any] struct {
	loop *Loop

	mu       sync.Mutex
	fn       func(T)
	released bool
}

func newListener[T any](loop *Loop, fn func(T)) *listener[T] {
	if fn == nil {
		return nil
	}
	return &listener[T]{loop: loop, fn: fn}
}

func (l *listener[T]) invoke(v T) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return false
	}
	return l.loop.Post(func() {
		if fn := l.current(); fn != nil {
			fn(v)
		}
	})
}

func (l *listener[T]) current() func(T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fn
}

// release is idempotent and safe on a nil listener.
func (l *listener[T]) release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.released = true
	l.fn = nil
	l.mu.Unlock()
}
