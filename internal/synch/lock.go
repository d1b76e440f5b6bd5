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

// Holder is the minimal identity a Lock needs from whatever is holding it:
// something it can compare for ownership and donate priority into. Built
// to be satisfied by *threads.Thread without this package importing
// internal/threads (locks are lower-level than the thread package that
// uses them elsewhere in the kernel).
type Holder interface {
	Priority() int32
	Donate(newPriority int32)
	Undonate()
}

// Lock is a mutual-exclusion lock built over a binary Semaphore, adding
// priority donation (spec §4.7): acquiring a lock held by a
// lower-priority holder donates the caller's priority to the holder until
// release, so a low-priority holder is not starved behind medium-priority
// work while a high-priority thread waits on it.
type Lock struct {
	Name string

	sem *Semaphore

	mu    sync.Mutex
	owner Holder
}

// NewLock returns an unheld lock named name.
func NewLock(name string) *Lock {
	return &Lock{Name: name, sem: NewSemaphore(name+" sem", 1)}
}

// Acquire blocks until the lock is free, then takes it. If the lock is
// currently held by a thread of lower priority than caller, caller's
// priority is donated to the holder for the duration.
func (l *Lock) Acquire(caller Holder) {
	l.mu.Lock()
	holder := l.owner
	if holder != nil && holder.Priority() < caller.Priority() {
		holder.Donate(caller.Priority())
	}
	l.mu.Unlock()

	l.sem.P()

	l.mu.Lock()
	l.owner = caller
	l.mu.Unlock()
}

// Release releases the lock, restoring any priority donated to the caller
// while it held the lock. Panics (via kernelerrors.Fatal with
// exitOnViolation=false) if called by a non-holder.
func (l *Lock) Release(caller Holder, exitOnViolation bool) {
	l.mu.Lock()
	if l.owner != caller {
		l.mu.Unlock()
		kernelerrors.Fatal(exitOnViolation, "synch: Release of lock %q by non-owner", l.Name)
		return
	}
	l.owner = nil
	l.mu.Unlock()

	caller.Undonate()
	l.sem.V()
}

// HeldByCurrent reports whether caller currently holds the lock.
func (l *Lock) HeldByCurrent(caller Holder) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner == caller
}
