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

package syscall

import (
	"fmt"

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/logger"
	"github.com/nachos-go/kernel/internal/threads"
	"github.com/nachos-go/kernel/internal/vm"
)

// ProgramEntry is supplied by the (out-of-scope) MIPS emulator: given a
// freshly Exec'd process, it steps guest instructions until the program
// calls Exit, and returns the exit status. The dispatcher never
// interprets guest code itself — the MIPS instruction emulator stays
// fully out of scope, called into through this one narrow interface.
type ProgramEntry func(proc *Process) int

// Dispatcher holds every kernel singleton a syscall handler needs and
// implements the system-call boundary, the Go-domain successor
// to exception.cc's SyscallHandler switch.
type Dispatcher struct {
	fs      *diskfs.FileSystem
	sched   *threads.Scheduler
	paging  *vm.PagingSystem
	swapDir string
	console Console

	processes *ProcessTable

	halted bool
}

// NewDispatcher wires the syscall boundary to the kernel's file system,
// scheduler, paging system, and console device.
func NewDispatcher(fs *diskfs.FileSystem, sched *threads.Scheduler, paging *vm.PagingSystem, swapDir string, console Console) *Dispatcher {
	return &Dispatcher{
		fs:        fs,
		sched:     sched,
		paging:    paging,
		swapDir:   swapDir,
		console:   console,
		processes: NewProcessTable(),
	}
}

// Halt shuts the machine down, matching SC_HALT. There is no real machine
// to stop here; callers running an actual event loop should treat Halted
// becoming true as their cue to stop stepping guest code.
func (d *Dispatcher) Halt() {
	logger.Infof("syscall: shutdown initiated by user program")
	d.halted = true
}

// Halted reports whether Halt has been called.
func (d *Dispatcher) Halted() bool { return d.halted }

// Create implements SC_CREATE: a zero-length file allocation.
func (d *Dispatcher) Create(path string) bool {
	if err := d.fs.Create(path); err != nil {
		logger.Debugf("syscall: create %q: %v", path, err)
		return false
	}
	return true
}

// Remove implements SC_REMOVE, deferring to the file system's
// markedForDelete semantics (spec §4.5) when the file is still open.
func (d *Dispatcher) Remove(path string) bool {
	if err := d.fs.Remove(path); err != nil {
		logger.Debugf("syscall: remove %q: %v", path, err)
		return false
	}
	return true
}

// Open implements SC_OPEN, returning a per-process file id, or -1 if the
// path does not resolve.
func (d *Dispatcher) Open(proc *Process, path string) OpenFileID {
	h, err := d.fs.Open(path)
	if err != nil {
		logger.Debugf("syscall: open %q: %v", path, err)
		return -1
	}
	return proc.AddFile(h)
}

// Close implements SC_CLOSE: closing an already-closed handle is a no-op,
// matching spec §4.10.
func (d *Dispatcher) Close(proc *Process, id OpenFileID) {
	if err := proc.CloseFile(id); err != nil {
		logger.Errorf("syscall: close handle %d: %v", id, err)
	}
}

// Write implements SC_WRITE for both the console and process-local file
// handles, returning the number of bytes actually transferred, or -1 on a
// bad handle.
func (d *Dispatcher) Write(proc *Process, buf []byte, id OpenFileID) int {
	switch id {
	case ConsoleOutput:
		n, err := d.console.PutString(buf)
		if err != nil {
			logger.Errorf("syscall: console write: %v", err)
		}
		return n
	case ConsoleInput:
		return -1
	default:
		n, err := proc.WriteFile(id, buf)
		if err != nil {
			logger.Debugf("syscall: write handle %d: %v", id, err)
			return -1
		}
		return n
	}
}

// Read implements SC_READ, the mirror of Write.
func (d *Dispatcher) Read(proc *Process, buf []byte, id OpenFileID) int {
	switch id {
	case ConsoleInput:
		n, err := d.console.GetString(buf)
		if err != nil {
			logger.Errorf("syscall: console read: %v", err)
		}
		return n
	case ConsoleOutput:
		return -1
	default:
		n, err := proc.ReadFile(id, buf)
		if err != nil {
			logger.Debugf("syscall: read handle %d: %v", id, err)
			return -1
		}
		return n
	}
}

// Exec implements SC_EXEC: it loads path's NOFF executable into a brand
// new address space, marshals argv onto the child's stack via WriteArgs,
// and hands the running process to entry — the emulator's instruction
// loop, which this kernel does not itself implement (explicitly out of
// scope, supplied by the external emulator). The child's exit status,
// once entry returns, is what
// Join will later report.
func (d *Dispatcher) Exec(path string, argv []string, joinable bool, entry ProgramEntry) (SpaceId, error) {
	handle, err := d.fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("syscall: exec %q: %w", path, err)
	}

	space, err := vm.NewAddressSpace(handle, d.paging, d.fs, d.swapDir, vm.DefaultUserStackSize)
	if err != nil {
		return 0, fmt.Errorf("syscall: exec %q: %w", path, err)
	}

	proc := newProcess(space)
	pid := d.processes.Register(proc)

	mem := &AddressSpaceMemory{Space: space, Sys: d.paging}
	argc, argvAddr, sp, err := WriteArgs(mem, space.InitialStackPointer(), argv)
	if err != nil {
		d.processes.Remove(pid)
		space.Destroy()
		return 0, fmt.Errorf("syscall: exec %q: writing argv: %w", path, err)
	}
	proc.argc, proc.argv, proc.initialSP = argc, argvAddr, sp

	thread := d.sched.Fork(path, 0, joinable, func(t *threads.Thread) int {
		status := 0
		if entry != nil {
			status = entry(proc)
		}
		d.finish(proc, status)
		return status
	})
	proc.thread = thread

	return pid, nil
}

// finish runs Exit's finalization: close every handle the process still
// holds open and release its address space. Safe to call more than once
// (e.g. once from an explicit Exit and once when ProgramEntry returns) —
// only the first call does anything.
func (d *Dispatcher) finish(proc *Process, status int) {
	if !proc.markFinished() {
		return
	}
	proc.closeAllFiles()
	if err := proc.space.Destroy(); err != nil {
		logger.Errorf("syscall: destroying address space for pid %d: %v", proc.pid, err)
	}
	logger.Debugf("syscall: pid %d exited with status %d", proc.pid, status)
}

// Exit implements SC_EXIT for a process that wants to terminate from
// within its own ProgramEntry before naturally returning: it runs the
// same finalization finish will otherwise run at normal exit, and callers
// must return from their ProgramEntry immediately afterward (mirroring
// Thread::Finish's contract that execution past it never continues).
func (d *Dispatcher) Exit(proc *Process, status int) {
	d.finish(proc, status)
}

// Join implements SC_JOIN: blocks until the child named by id has exited,
// then returns its status. It reports an error for an id that never
// named a live process, matching the original's invalid-pid DEBUG path.
func (d *Dispatcher) Join(id SpaceId) (int, error) {
	proc, ok := d.processes.Lookup(id)
	if !ok {
		return -1, errInvalidPID
	}
	status := d.sched.Join(proc.thread)
	d.processes.Remove(id)
	return status, nil
}

// GetPID implements SC_GETPID, absent from the minimal syscall set but
// relied on by the original Nachos shell's prompt and by diagnostics in
// its test programs, so it is carried here too.
func (d *Dispatcher) GetPID(proc *Process) SpaceId { return proc.pid }

// Fork implements the supplemented SC_FORK call: a new joinable thread
// that shares the caller's address space (no page-table copy-on-write is
// implemented; this kernel's demand pager has no facility for duplicating
// a live address space, so the child literally runs in the same one) and
// starts with its own, independently-closable copy of the caller's
// open-file table — enough for the Nachos shell's `&`-backgrounding, which
// never diverges the child's memory from the parent's.
func (d *Dispatcher) Fork(parent *Process, joinable bool, entry ProgramEntry) SpaceId {
	child := newProcess(parent.space)
	parent.dupFilesInto(child)

	pid := d.processes.Register(child)
	thread := d.sched.Fork(fmt.Sprintf("fork-of-%d", parent.pid), parent.thread.Priority(), joinable, func(t *threads.Thread) int {
		status := 0
		if entry != nil {
			status = entry(child)
		}
		child.closeAllFiles()
		logger.Debugf("syscall: forked pid %d exited with status %d", child.pid, status)
		return status
	})
	child.thread = thread
	return pid
}
