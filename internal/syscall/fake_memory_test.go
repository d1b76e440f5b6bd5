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

package syscall_test

import (
	"fmt"

	syscall "github.com/nachos-go/kernel/internal/syscall"
)

// fakeGuestMemory is a flat byte-slice standing in for a real MIPS
// emulator's simulated address space, used to exercise the transfer
// helpers and argv marshaling without needing a live AddressSpace.
type fakeGuestMemory struct {
	bytes []byte
}

func newFakeGuestMemory(size int) *fakeGuestMemory {
	return &fakeGuestMemory{bytes: make([]byte, size)}
}

func (m *fakeGuestMemory) ReadByte(addr uint32) (byte, error) {
	if int(addr) >= len(m.bytes) {
		return 0, fmt.Errorf("fakeGuestMemory: address %d out of range", addr)
	}
	return m.bytes[addr], nil
}

func (m *fakeGuestMemory) WriteByte(addr uint32, b byte) error {
	if int(addr) >= len(m.bytes) {
		return fmt.Errorf("fakeGuestMemory: address %d out of range", addr)
	}
	m.bytes[addr] = b
	return nil
}

var _ syscall.GuestMemory = (*fakeGuestMemory)(nil)
