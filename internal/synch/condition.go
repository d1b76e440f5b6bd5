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

package synch

import (
	"sync"

	"github.com/nachos-go/kernel/internal/kernelerrors"
)

// Condition is a condition variable associated with a particular Lock,
// matching the original's {associatedLock, waitSet} pair. Wait releases
// the lock and blocks the caller; Signal/Broadcast wake one or all
// waiters. The wait-set itself is protected by a small internal mutex so
// Wait/Signal never race on it, per spec §4.7.
type Condition struct {
	Name string
	lock *Lock

	mu      sync.Mutex
	waiters []*Semaphore
}

// NewCondition returns a condition variable associated with lock.
func NewCondition(name string, lock *Lock) *Condition {
	return &Condition{Name: name, lock: lock}
}

// Wait releases the associated lock, blocks until a matching
// Signal/Broadcast, then reacquires the lock before returning. The caller
// must hold the lock; exitOnViolation controls whether that precondition
// failure is fatal-abort or panic (see kernelerrors.Fatal).
func (c *Condition) Wait(caller Holder, exitOnViolation bool) {
	if !c.lock.HeldByCurrent(caller) {
		kernelerrors.Fatal(exitOnViolation, "synch: Wait on condition %q without holding its lock", c.Name)
		return
	}

	waiterSem := NewSemaphore("condition waiter", 0)
	c.mu.Lock()
	c.waiters = append(c.waiters, waiterSem)
	c.mu.Unlock()

	c.lock.Release(caller, exitOnViolation)
	waiterSem.P()
	c.lock.Acquire(caller)
}

// Signal wakes the longest-waiting caller of Wait, if any.
func (c *Condition) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.V()
}

// WaitersLen returns the number of goroutines currently blocked in Wait.
// Intended for tests that need to synchronize on a waiter actually having
// parked before signaling it.
func (c *Condition) WaitersLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Broadcast wakes every caller currently blocked in Wait.
func (c *Condition) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		w.V()
	}
	c.waiters = nil
}
