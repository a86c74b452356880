// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import "sync"

// Observable holds a value and notifies subscribers whenever it is set.
// Notifications are delivered synchronously, in registration order, on the
// goroutine that changed the value. Subscribers must not modify values they
// receive; slices are shared with every other subscriber.
type Observable[T any] struct {
	mu     sync.Mutex
	value  T
	subs   []observer[T]
	nextID int
}

type observer[T any] struct {
	id int
	fn func(T)
}

// NewObservable creates an Observable holding initial.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set replaces the value and notifies subscribers.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	subs := o.snapshot()
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Update replaces the value with fn(current) and notifies subscribers.
// fn runs under the observable's lock and must not call back into it.
func (o *Observable[T]) Update(fn func(T) T) {
	o.mu.Lock()
	v := fn(o.value)
	o.value = v
	subs := o.snapshot()
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn and returns a function that unregisters it.
// fn is not called with the current value; use Get for that.
func (o *Observable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs = append(o.subs, observer[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *Observable[T]) snapshot() []observer[T] {
	out := make([]observer[T], len(o.subs))
	copy(out, o.subs)
	return out
}
