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

import "github.com/nachos-go/kernel/internal/vm"

// AddressSpaceMemory is the kernel's own GuestMemory implementation,
// backing the transfer helpers directly with an AddressSpace's page table
// rather than a real MIPS emulator's memory array. Each byte access
// translates its virtual page through AddressSpace.Translate, which
// resolves TLB misses (demand-loading or evicting a page) synchronously
// before returning a physical frame — the same "retry against the address
// space" transfer.cc performs with its `while (!machine->ReadMem(...))`
// spin loop, just collapsed into one call instead of a visible retry,
// since Translate never returns a transient failure: it either resolves
// the page or fails permanently (address out of range).
type AddressSpaceMemory struct {
	Space *vm.AddressSpace
	Sys   *vm.PagingSystem
}

func (m *AddressSpaceMemory) ReadByte(addr uint32) (byte, error) {
	pageSize := m.Sys.PageSize()
	vpn, offset := addr/pageSize, addr%pageSize
	ppn, err := m.Space.Translate(vpn, false)
	if err != nil {
		return 0, err
	}
	frame := make([]byte, pageSize)
	m.Sys.ReadFrame(ppn, frame)
	return frame[offset], nil
}

func (m *AddressSpaceMemory) WriteByte(addr uint32, b byte) error {
	pageSize := m.Sys.PageSize()
	vpn, offset := addr/pageSize, addr%pageSize
	ppn, err := m.Space.Translate(vpn, true)
	if err != nil {
		return err
	}
	frame := make([]byte, pageSize)
	m.Sys.ReadFrame(ppn, frame)
	frame[offset] = b
	m.Sys.WriteFrame(ppn, frame)
	return nil
}
