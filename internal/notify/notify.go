// Package notify fans state snapshots out to subscribers in version order.
package notify

import (
	"slices"
	"sync"
)

// Hub delivers published values to subscribers. Values published with a
// version that is not newer than the last accepted one are dropped, so a
// slow publisher can never rewind what subscribers have seen.
//
// Subscribers are called without the hub's lock held and may subscribe,
// unsubscribe or publish from inside a callback. One goroutine delivers at a
// time; a value published while another goroutine is delivering is queued
// and handed to subscribers by that goroutine, in version order.
type Hub[T any] struct {
	mu         sync.Mutex
	next       int
	subs       map[int]func(T)
	last       uint64
	queue      []T
	delivering bool
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish hands v to every subscriber unless version is stale. It returns
// once v is delivered, or queued behind a delivery already in progress.
func (h *Hub[T]) Publish(version uint64, v T) {
	h.mu.Lock()
	if version <= h.last {
		h.mu.Unlock()
		return
	}
	h.last = version
	h.queue = append(h.queue, v)
	if h.delivering {
		h.mu.Unlock()
		return
	}
	h.delivering = true
	h.mu.Unlock()

	h.drain()
}

func (h *Hub[T]) drain() {
	defer func() {
		// a panicking subscriber must not wedge later publishers
		if r := recover(); r != nil {
			h.mu.Lock()
			h.delivering = false
			h.queue = nil
			h.mu.Unlock()
			panic(r)
		}
	}()
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.delivering = false
			h.mu.Unlock()
			return
		}
		v := h.queue[0]
		h.queue = h.queue[1:]
		fns := h.snapshotLocked()
		h.mu.Unlock()

		for _, fn := range fns {
			fn(v)
		}
	}
}

// snapshotLocked returns the subscribers in registration order.
func (h *Hub[T]) snapshotLocked() []func(T) {
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = h.subs[id]
	}
	return fns
}
