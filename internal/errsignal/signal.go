// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errsignal provides a process-wide, single-slot error message with
// automatic expiry.
//
// A Signal holds at most one message. Setting a message (re)starts its
// auto-clear timer; only the most recent message is cleared when the timer
// fires. Subscribers are notified synchronously, in registration order, on
// every change. A cleared slot is reported to subscribers as "".
package errsignal

import (
	"sync"
	"time"
)

// DefaultExpiry is how long a message stays set when nothing replaces it.
const DefaultExpiry = 5 * time.Second

// Signal is a single-slot transient error channel. The zero value is not
// usable; create one with New.
type Signal struct {
	mu      sync.Mutex
	expiry  time.Duration
	message string
	set     bool
	gen     uint64
	timer   *time.Timer
	subs    []subscriber
	nextID  int
}

type subscriber struct {
	id int
	fn func(string)
}

// New creates an empty Signal. A non-positive expiry uses DefaultExpiry.
func New(expiry time.Duration) *Signal {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Signal{expiry: expiry}
}

// Expiry returns the auto-clear duration.
func (s *Signal) Expiry() time.Duration {
	return s.expiry
}

// Set stores message and restarts the auto-clear timer, replacing any
// pending one.
func (s *Signal) Set(message string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.message = message
	s.set = true
	s.timer = time.AfterFunc(s.expiry, func() { s.expire(gen) })
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, message)
}

// Report sets the signal to err's message. A nil error is ignored.
func (s *Signal) Report(err error) {
	if err == nil {
		return
	}
	s.Set(err.Error())
}

// Clear empties the slot and cancels the pending timer.
func (s *Signal) Clear() {
	s.mu.Lock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	wasSet := s.set
	s.message = ""
	s.set = false
	subs := s.snapshot()
	s.mu.Unlock()

	if wasSet {
		notify(subs, "")
	}
}

// Message returns the current message and whether one is set.
func (s *Signal) Message() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message, s.set
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. Calling the returned function more than once is safe.
func (s *Signal) Subscribe(fn func(string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// expire clears the slot if no Set or Clear happened since the timer for
// gen was started.
func (s *Signal) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.set {
		s.mu.Unlock()
		return
	}
	s.message = ""
	s.set = false
	s.timer = nil
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, "")
}

// snapshot copies the subscriber list. Caller holds s.mu.
func (s *Signal) snapshot() []subscriber {
	out := make([]subscriber, len(s.subs))
	copy(out, s.subs)
	return out
}

func notify(subs []subscriber, message string) {
	for _, sub := range subs {
		sub.fn(message)
	}
}
