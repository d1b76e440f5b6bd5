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

// Package threads models the kernel's cooperative thread abstraction: a
// NEW/READY/RUNNING/BLOCKED/FINISHED state machine, a priority field that
// internal/synch's Lock can donate into, and a join contract for threads
// created joinable. Real preemption and a hand-rolled ready queue would add
// nothing on top of the Go runtime's own scheduler, so a Thread here is a
// goroutine plus the bookkeeping the rest of the kernel needs to reason
// about it; the scheduler gate (Scheduler.gate) stands in for the
// original's "disable interrupts" critical sections.
package threads

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// State is a thread's position in the NEW/READY/RUNNING/BLOCKED/FINISHED
// state machine.
type State int32

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateBlocked
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Thread is the kernel's view of one schedulable activity. Everything
// below basePriority is owned by the Scheduler that created it; readers
// outside this package should treat Thread as opaque except for Priority
// and Name.
type Thread struct {
	ID   uint64
	Name string

	// joinable threads retain their exit status in StateFinished until
	// Join consumes it.
	joinable bool

	state       atomic.Int32
	priority    atomic.Int32 // current effective priority, donation included
	basePriority int32        // priority given at Fork; Undonate restores from donors

	mu         sync.Mutex
	donors     []int32 // stack of priorities donated away, for restore
	exitStatus int

	done chan struct{}
}

// Priority returns the thread's current effective priority (its own, or a
// donated one if a Lock has boosted it).
func (t *Thread) Priority() int32 { return t.priority.Load() }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return State(t.state.Load()) }

// Donate raises the thread's effective priority to at least newPriority,
// recording the prior value so Undonate can restore it. Used by Lock's
// priority-donation protocol (spec §4.7); a no-op if the thread already
// has at least that priority.
func (t *Thread) Donate(newPriority int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.priority.Load()
	if newPriority <= cur {
		return
	}
	t.donors = append(t.donors, cur)
	t.priority.Store(newPriority)
}

// Undonate pops the most recent donation, restoring the priority that was
// in effect before it. A no-op if no donation is outstanding.
func (t *Thread) Undonate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.donors) == 0 {
		return
	}
	prior := t.donors[len(t.donors)-1]
	t.donors = t.donors[:len(t.donors)-1]
	t.priority.Store(prior)
}

// ExitStatus returns the status the thread recorded when it finished. Only
// meaningful after State() == StateFinished.
func (t *Thread) ExitStatus() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitStatus
}

// Scheduler owns thread creation and join bookkeeping. The gate mutex
// is the single kernel mutex standing in for disabling/restoring
// interrupts, taken through Gate. The primitives in internal/synch do not
// take it; each guards its own wait-queue state with a private mutex.
type Scheduler struct {
	gate   sync.Mutex
	nextID atomic.Uint64
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Gate locks the scheduler's critical-section mutex and returns a function
// that unlocks it, so callers can write `defer sched.Gate()()` the way the
// original wrote SCHEDULER_INT_OFF/ON pairs.
func (s *Scheduler) Gate() func() {
	s.gate.Lock()
	return s.gate.Unlock
}

// Fork creates a new thread with the given name and priority, running fn
// in its own goroutine, and transitions it NEW -> READY -> RUNNING
// immediately (Go's runtime schedules the goroutine; the kernel does not
// second-guess when). If joinable, Join(t) can later retrieve fn's exit
// status.
func (s *Scheduler) Fork(name string, priority int32, joinable bool, fn func(t *Thread) int) *Thread {
	t := &Thread{
		ID:           s.nextID.Add(1),
		Name:         name,
		joinable:     joinable,
		basePriority: priority,
		done:         make(chan struct{}),
	}
	t.priority.Store(priority)
	t.state.Store(int32(StateReady))

	go func() {
		t.state.Store(int32(StateRunning))
		status := fn(t)
		t.mu.Lock()
		t.exitStatus = status
		t.mu.Unlock()
		t.state.Store(int32(StateFinished))
		close(t.done)
	}()

	return t
}

// Join blocks until child reaches StateFinished, then returns its exit
// status. It panics if child was not created joinable, matching the
// contract that Join is only legal on joinable threads.
func (s *Scheduler) Join(child *Thread) int {
	if !child.joinable {
		panic(fmt.Sprintf("threads: Join on non-joinable thread %q", child.Name))
	}
	<-child.done
	return child.ExitStatus()
}

// Yield gives other runnable goroutines a chance to run, mirroring a
// voluntary yield back to the scheduler.
func Yield() {
	runtime.Gosched()
}
