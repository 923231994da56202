// Package binding is the object-style API over a device driver. Results and
// notifications are delivered on a Loop, the consumer's single execution
// context, never on the driver's goroutine.
package binding

import "sync"

// Loop runs posted functions one at a time, in order, on the goroutine that
// calls Run.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func NewLoop() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post enqueues fn without blocking. It returns false once the loop is
// closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.items = append(l.items, fn)
	l.cond.Signal()
	return true
}

// Run executes posted functions until Close, then drains what was queued
// before Close and returns.
func (l *Loop) Run() {
	for {
		fn, ok := l.pop()
		if !ok {
			return
		}
		fn()
	}
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for !l.closed && len(l.items) == 0 {
		l.cond.Wait()
	}
	if len(l.items) == 0 {
		return nil, false
	}
	fn := l.items[0]
	l.items[0] = nil
	l.items = l.items[1:]
	return fn, true
}

func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}
