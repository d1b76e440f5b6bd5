// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package synch implements the kernel's synchronization primitives —
// Semaphore, Lock (with priority donation), Condition, and Port — ported
// from the original kernel's synch.cc onto goroutines: P/wait suspend the
// calling goroutine on a private channel instead of calling into a thread
// scheduler, but the wait-queue discipline (FIFO) and the observable
// contracts (signal wakes exactly one, broadcast wakes all, ports match
// send/receive one-to-one) are unchanged.
package synch

import "sync"

// Semaphore is a classic counting semaphore with a FIFO wait queue.
type Semaphore struct {
	Name string

	mu      sync.Mutex
	value   int
	waiters []chan struct{}
}

// NewSemaphore returns a Semaphore named name with the given initial
// value.
func NewSemaphore(name string, value int) *Semaphore {
	return &Semaphore{Name: name, value: value}
}

// P decrements the semaphore, blocking while its value is zero. Waiters
// are woken in the order they called P.
func (s *Semaphore) P() {
	s.mu.Lock()
	for s.value == 0 {
		ch := make(chan struct{})
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
	}
	s.value--
	s.mu.Unlock()
}

// V increments the semaphore, waking the longest-waiting blocked P call if
// one exists.
func (s *Semaphore) V() {
	s.mu.Lock()
	s.value++
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(ch)
	}
	s.mu.Unlock()
}

// Value returns the semaphore's current count. For diagnostics and tests
// only; racy with respect to concurrent P/V by design (so is the original).
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
