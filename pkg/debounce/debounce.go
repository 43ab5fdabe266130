// Package debounce delivers the last of a burst of values once the caller
// has been quiet for a fixed period.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is given.
const DefaultDelay = time.Second

// Debouncer is a trailing-edge debouncer. Each Trigger replaces the pending
// value and restarts the quiet period; fn runs with the latest value once
// the period elapses without another Trigger. fn never runs concurrently
// with itself.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	value   T
	pending bool
	seq     uint64
	stopped bool

	run sync.Mutex
}

// New creates a Debouncer calling fn after delay of quiet.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Trigger schedules v, replacing any value not yet delivered.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.value = v
	d.pending = true
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(seq)
	})
}

// Pending reports whether a value is waiting for delivery.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush delivers the pending value now, if any, and reports whether it did.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return false
	}
	v := d.takeLocked()
	d.mu.Unlock()
	d.deliver(v)
	return true
}

// Stop cancels any pending delivery. Later Triggers are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.takeLocked()
}

// Cancel drops any pending value without stopping the debouncer.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.takeLocked()
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	// A newer Trigger or a Flush owns delivery.
	if d.stopped || !d.pending || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.takeLocked()
	d.mu.Unlock()
	d.deliver(v)
}

func (d *Debouncer[T]) takeLocked() T {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	v := d.value
	var zero T
	d.value = zero
	d.pending = false
	d.seq++
	return v
}

func (d *Debouncer[T]) deliver(v T) {
	d.run.Lock()
	defer d.run.Unlock()
	d.fn(v)
}
