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
	"sync"

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/kernelerrors"
	"github.com/nachos-go/kernel/internal/threads"
	"github.com/nachos-go/kernel/internal/vm"
)

// SpaceId identifies one running user process, matching SC_EXEC's return
// value and SC_JOIN's argument (exception.cc's SpaceId/processTable).
type SpaceId int32

// OpenFileID identifies one file handle within a process's own open-file
// table (exception.cc's OpenFileId), distinct from the reserved
// ConsoleInput/ConsoleOutput handle numbers.
type OpenFileID int32

// openFile pairs a handle with the running position the original
// kernel's OpenFile kept internally, since diskfs.Handle itself takes an
// explicit offset on every call rather than tracking one.
type openFile struct {
	handle *diskfs.Handle
	pos    uint32
}

// Process is one running user program: its address space and its
// per-thread open-file table, the Go-domain successor to the original
// kernel's Thread::space plus Thread::AddFile/GetFile/RemoveFile/
// IsOpenFile bookkeeping (which the retrieved source keeps on Thread
// itself; this rewrite lifts it into its own type so Exec/Fork can hand
// off or duplicate it without reaching into internal/threads.Thread).
type Process struct {
	pid    SpaceId
	space  *vm.AddressSpace
	thread *threads.Thread

	// argc/argv/initialSP are the values a real MIPS emulator would load
	// into registers 4/5/29 before stepping the program's first
	// instruction (args.cc's WriteArgs return values). Exec fills these
	// in once, before handing the process to ProgramEntry, since nothing
	// else on Process records where argv ended up on the child's stack.
	argc      uint32
	argv      uint32
	initialSP uint32

	mu       sync.Mutex
	files    map[OpenFileID]*openFile
	nextFile OpenFileID
	finished bool
}

func newProcess(space *vm.AddressSpace) *Process {
	return &Process{
		space:    space,
		files:    make(map[OpenFileID]*openFile),
		nextFile: ConsoleOutput + 1,
	}
}

// StartupRegisters returns the argc/argv/stack-pointer values Exec's
// WriteArgs computed for this process, standing in for the registers a
// real MIPS emulator would seed before stepping the program's first
// instruction.
func (p *Process) StartupRegisters() (argc, argv, sp uint32) {
	return p.argc, p.argv, p.initialSP
}

// PID returns the process's space id.
func (p *Process) PID() SpaceId { return p.pid }

// AddressSpace returns the process's virtual memory manager.
func (p *Process) AddressSpace() *vm.AddressSpace { return p.space }

// AddFile records a newly opened handle and returns the file id the user
// program should use to refer to it, matching Thread::AddFile.
func (p *Process) AddFile(h *diskfs.Handle) OpenFileID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextFile
	p.nextFile++
	p.files[id] = &openFile{handle: h}
	return id
}

// ReadFile reads into buf starting at id's current position, advancing it
// by the number of bytes actually read.
func (p *Process) ReadFile(id OpenFileID, buf []byte) (int, error) {
	p.mu.Lock()
	f, ok := p.files[id]
	p.mu.Unlock()
	if !ok {
		return 0, kernelerrors.New(kernelerrors.BadHandle, "syscall: no such open file %d", id)
	}

	n, err := f.handle.Read(buf, f.pos)
	p.mu.Lock()
	f.pos += uint32(n)
	p.mu.Unlock()
	return n, err
}

// WriteFile writes buf starting at id's current position, advancing it by
// the number of bytes actually written.
func (p *Process) WriteFile(id OpenFileID, buf []byte) (int, error) {
	p.mu.Lock()
	f, ok := p.files[id]
	p.mu.Unlock()
	if !ok {
		return 0, kernelerrors.New(kernelerrors.BadHandle, "syscall: no such open file %d", id)
	}

	n, err := f.handle.Write(buf, f.pos)
	p.mu.Lock()
	f.pos += uint32(n)
	p.mu.Unlock()
	return n, err
}

// CloseFile drops id from the table and closes its handle, matching
// Thread::RemoveFile followed by `delete file`. Closing an id that is not
// open is a no-op, matching spec §4.10.
func (p *Process) CloseFile(id OpenFileID) error {
	p.mu.Lock()
	f, ok := p.files[id]
	if ok {
		delete(p.files, id)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return f.handle.Close()
}

// dupFilesInto copies every open file this process holds into other,
// duplicating each underlying handle (see diskfs.Handle.Dup) so the two
// process's file tables can be closed independently, matching a
// fork()-style shared-but-separately-closable file descriptor table.
// Position is not shared: the child starts reading/writing from the same
// offset the parent was at, but they diverge independently afterward.
func (p *Process) dupFilesInto(other *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.files {
		other.files[id] = &openFile{handle: f.handle.Dup(), pos: f.pos}
	}
	if p.nextFile > other.nextFile {
		other.nextFile = p.nextFile
	}
}

// markFinished reports whether this call is the first to finalize the
// process, so Exit's finalization (close files, release the address
// space) runs exactly once even if ProgramEntry both calls Exit
// explicitly and then returns normally.
func (p *Process) markFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return false
	}
	p.finished = true
	return true
}

// closeAllFiles closes every file the process still has open, run as part
// of Exit/finalization.
func (p *Process) closeAllFiles() {
	p.mu.Lock()
	files := p.files
	p.files = make(map[OpenFileID]*openFile)
	p.mu.Unlock()

	for _, f := range files {
		f.handle.Close()
	}
}

// ProcessTable assigns SpaceIds and looks processes up by id, matching
// exception.cc's global processTable (a Table<Thread *> keyed by pid).
type ProcessTable struct {
	mu    sync.Mutex
	next  SpaceId
	procs map[SpaceId]*Process
}

// NewProcessTable returns an empty process table.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{procs: make(map[SpaceId]*Process)}
}

// Register assigns proc a fresh pid and makes it visible to Lookup.
func (t *ProcessTable) Register(proc *Process) SpaceId {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	proc.pid = id
	t.procs[id] = proc
	return id
}

// Lookup returns the process registered under id, matching
// processTable->HasKey/Get.
func (t *ProcessTable) Lookup(id SpaceId) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[id]
	return p, ok
}

// Remove drops id from the table, called once a joined (or unjoinable,
// already-detached) process has fully exited.
func (t *ProcessTable) Remove(id SpaceId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, id)
}

// errInvalidPID is returned by Join when id never named a live process.
var errInvalidPID = kernelerrors.New(kernelerrors.NotFound, "syscall: invalid pid")
