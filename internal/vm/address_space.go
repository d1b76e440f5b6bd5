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

package vm

import (
	"fmt"

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/kernelerrors"
)

// DefaultUserStackSize is the number of bytes reserved past an
// executable's segments for the user stack, matching the original
// kernel's USER_STACK_SIZE.
const DefaultUserStackSize = 1024

// tlbSize is the number of software TLB slots an address space keeps hot,
// replaced round-robin on a miss — the Go successor to the original
// kernel's fixed hardware TLB_SIZE, generalized from one shared machine
// TLB to one per address space. That generalization is deliberate: the
// original's single hardware TLB makes sense for one CPU running one
// thread at a time, context-switching the TLB's contents at
// SaveState/RestoreState; this rewrite runs many address spaces as truly
// concurrent goroutines, so each gets its own software TLB instead of
// contending for one global register file that doesn't exist here.
const tlbSize = 4

// Executable is the minimal read contract an address space needs from
// its backing program file — satisfied structurally by *diskfs.Handle.
type Executable interface {
	Read(buf []byte, offset uint32) (int, error)
}

// AddressSpace is one user program's virtual memory: its page table, its
// small software TLB, the NOFF segments backing first-touch loads, and
// its private swap file. The Go-domain successor to the original
// kernel's AddressSpace.
type AddressSpace struct {
	sys      *PagingSystem
	pageSize uint32
	numPages uint32

	header     Header
	executable Executable
	swap       *Swap

	pageTable []TranslationEntry
	tlb       [tlbSize]TranslationEntry
	tlbNext   int
}

// NewAddressSpace loads executable's NOFF header and builds an address
// space with the executable's segments plus a stack, all pages initially
// non-resident.
func NewAddressSpace(executable Executable, sys *PagingSystem, swapFS *diskfs.FileSystem, swapDir string, userStackSize uint32) (*AddressSpace, error) {
	hdrBuf := make([]byte, noffHeaderSize)
	if _, err := executable.Read(hdrBuf, 0); err != nil {
		return nil, fmt.Errorf("vm: address space: read noff header: %w", err)
	}
	header, err := DecodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	size := header.Code.Size + header.InitData.Size + header.UninitData.Size + userStackSize
	numPages := divRoundUp(size, sys.pageSize)

	pageTable := make([]TranslationEntry, numPages)
	for i := range pageTable {
		pageTable[i] = TranslationEntry{VirtualPage: uint32(i), PhysicalPage: FrameUnassigned}
	}

	swap, err := newSwap(swapFS, swapDir, sys.pageSize, numPages)
	if err != nil {
		return nil, err
	}

	return &AddressSpace{
		sys:        sys,
		pageSize:   sys.pageSize,
		numPages:   numPages,
		header:     header,
		executable: executable,
		swap:       swap,
		pageTable:  pageTable,
	}, nil
}

func divRoundUp(n, d uint32) uint32 { return (n + d - 1) / d }

// NumPages returns the address space's size in pages.
func (as *AddressSpace) NumPages() uint32 { return as.numPages }

// InitialStackPointer returns the stack register's starting value: the
// top of the address space, pulled back 16 bytes so a reference just past
// the stack pointer can never run off the end.
func (as *AddressSpace) InitialStackPointer() uint32 {
	return as.numPages*as.pageSize - 16
}

// Translate resolves vpn to a physical frame number, faulting the page in
// (and evicting another page if physical memory is full) on a miss.
// write reports whether the access is a store, for dirty-bit tracking.
func (as *AddressSpace) Translate(vpn uint32, write bool) (uint32, error) {
	as.sys.mu.Lock()
	defer as.sys.mu.Unlock()

	if vpn >= as.numPages {
		return 0, kernelerrors.New(kernelerrors.BadHandle, "vm: vpn %d out of range (numPages=%d)", vpn, as.numPages)
	}

	for i := range as.tlb {
		e := &as.tlb[i]
		if e.Valid && e.VirtualPage == vpn {
			if write {
				e.Dirty = true
				as.pageTable[vpn].Dirty = true
			}
			as.sys.coremap.Access(e.PhysicalPage)
			return e.PhysicalPage, nil
		}
	}
	return as.handleTLBMiss(vpn, write)
}

func (as *AddressSpace) handleTLBMiss(vpn uint32, write bool) (uint32, error) {
	if err := as.loadPage(vpn); err != nil {
		return 0, err
	}
	if write {
		as.pageTable[vpn].Dirty = true
	}
	entry := as.pageTable[vpn]

	slot := as.tlbNext % tlbSize
	as.tlbNext++
	victim := as.tlb[slot]
	if victim.Valid {
		as.pageTable[victim.VirtualPage].Dirty = as.pageTable[victim.VirtualPage].Dirty || victim.Dirty
	}
	as.tlb[slot] = entry
	as.sys.coremap.Access(entry.PhysicalPage)
	return entry.PhysicalPage, nil
}

// loadPage ensures vpn is backed by a physical frame, evicting the
// coremap's least-recently-used victim if none is free. Called with
// sys.mu held.
func (as *AddressSpace) loadPage(vpn uint32) error {
	entry := &as.pageTable[vpn]
	if entry.Valid {
		return nil
	}

	ppn, ok := as.sys.frames.Alloc()
	if !ok {
		victim, err := as.evictVictim()
		if err != nil {
			return err
		}
		ppn = victim
	}

	frame := make([]byte, as.pageSize)
	if entry.HasSwapCopy {
		if err := as.swap.ReadPage(vpn, as.pageSize, frame); err != nil {
			as.sys.frames.Free(ppn)
			return err
		}
	} else {
		as.fillFromExecutable(vpn, frame)
	}
	as.sys.memory.WriteFrame(ppn, frame)

	entry.PhysicalPage = ppn
	entry.Valid = true
	entry.Dirty = false
	as.sys.coremap.Store(ppn, as, vpn)
	return nil
}

// evictVictim picks the coremap's least-recently-used resident frame,
// writes its owner's page back to swap if needed, and returns the now-
// free frame number. Called with sys.mu held.
func (as *AddressSpace) evictVictim() (uint32, error) {
	ppn, content, ok := as.sys.coremap.Victim()
	if !ok {
		return 0, kernelerrors.New(kernelerrors.NoSpace, "vm: physical memory exhausted and nothing resident to evict")
	}
	if err := content.Space.evictPage(ppn, content.VPN); err != nil {
		return 0, err
	}
	as.sys.coremap.Remove(ppn)
	return ppn, nil
}

// evictPage writes vpn's frame back to this address space's swap file (if
// it is dirty or has never been swapped before) and marks it non-
// resident, invalidating any TLB slot that still points at it. Called
// with sys.mu held, possibly by a different address space's Translate
// call than the one that owns vpn.
func (as *AddressSpace) evictPage(ppn, vpn uint32) error {
	entry := &as.pageTable[vpn]
	for i := range as.tlb {
		if as.tlb[i].Valid && as.tlb[i].VirtualPage == vpn {
			entry.Dirty = entry.Dirty || as.tlb[i].Dirty
			as.tlb[i] = TranslationEntry{}
		}
	}

	if entry.Dirty || !entry.HasSwapCopy {
		frame := make([]byte, as.pageSize)
		as.sys.memory.ReadFrame(ppn, frame)
		if err := as.swap.WritePage(vpn, as.pageSize, frame); err != nil {
			return err
		}
		entry.HasSwapCopy = true
	}

	as.sys.memory.ZeroFrame(ppn)
	entry.Valid = false
	entry.Dirty = false
	entry.PhysicalPage = FrameUnassigned
	return nil
}

// fillFromExecutable zero-fills frame and then overlays whichever segment
// (code or initialized data) covers vpn's virtual address, leaving
// uninitialized-data and stack pages all-zero.
func (as *AddressSpace) fillFromExecutable(vpn uint32, frame []byte) {
	clear(frame)

	virtualAddr := vpn * as.pageSize
	h := as.header
	var inFileAddr uint32
	switch {
	case h.Code.contains(virtualAddr):
		inFileAddr = h.Code.InFileAddr + (virtualAddr - h.Code.VirtualAddr)
	case h.InitData.contains(virtualAddr):
		inFileAddr = h.InitData.InFileAddr + (virtualAddr - h.InitData.VirtualAddr)
	default:
		return
	}
	as.executable.Read(frame, inFileAddr)
}

// Destroy releases every physical frame and swap resource the address
// space holds. It must be called exactly once, when the owning thread
// exits.
func (as *AddressSpace) Destroy() error {
	as.sys.mu.Lock()
	removed := as.sys.coremap.CleanSpace(as)
	for _, ppn := range removed {
		as.sys.memory.ZeroFrame(ppn)
		as.sys.frames.Free(ppn)
	}
	as.sys.mu.Unlock()
	return as.swap.Close()
}
