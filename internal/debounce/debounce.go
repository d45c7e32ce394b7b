// Package debounce implements a trailing-edge debouncer.
package debounce

import (
	"sync"
	"time"
)

// Debouncer calls fn with the most recent value once Call has not been
// invoked for delay.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	value   T
	gen     uint64
}

func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Call records v and restarts the quiet period. A zero delay calls fn
// synchronously.
func (d *Debouncer[T]) Call(v T) {
	if d.delay <= 0 {
		d.fn(v)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.value = v
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush runs the pending call, if any, right now on the caller's goroutine.
// It reports whether a call was made.
func (d *Debouncer[T]) Flush() bool {
	v, ok := d.take(0)
	if ok {
		d.fn(v)
	}
	return ok
}

// Stop drops the pending call.
func (d *Debouncer[T]) Stop() {
	d.take(0)
}

func (d *Debouncer[T]) fire(gen uint64) {
	v, ok := d.take(gen)
	if ok {
		d.fn(v)
	}
}

// take clears the pending value. A non-zero gen only matches the timer that
// was armed for it.
func (d *Debouncer[T]) take(gen uint64) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if !d.pending || (gen != 0 && gen != d.gen) {
		return zero, false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	v := d.value
	d.value = zero
	d.pending = false
	return v, true
}
