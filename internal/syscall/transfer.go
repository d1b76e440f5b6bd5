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

// Package syscall implements the kernel's system-call boundary: the
// guest-memory transfer helpers and argv marshaling of
// userprog/transfer.cc and userprog/args.cc, and the syscall dispatch of
// userprog/exception.cc's SyscallHandler. The Go-domain successor treats
// the MIPS instruction emulator itself as an out-of-scope collaborator
// (per the core's own contract): this package only defines the narrow
// memory interface the emulator must satisfy and the host-side logic that
// consumes it.
package syscall

import "github.com/nachos-go/kernel/internal/kernelerrors"

// Console handle numbers reserved by the calling convention (spec §4.10),
// distinct from any real file handle a process opens.
const (
	ConsoleInput  = 0
	ConsoleOutput = 1
)

// GuestMemory is the narrow contract the (out-of-scope) MIPS emulator's
// simulated address space must satisfy for the transfer helpers below to
// move bytes in and out of a running user program. It mirrors
// transfer.cc's direct use of machine->ReadMem/WriteMem.
type GuestMemory interface {
	// ReadByte returns the byte at the given guest virtual address.
	ReadByte(addr uint32) (byte, error)
	// WriteByte stores b at the given guest virtual address.
	WriteByte(addr uint32, b byte) error
}

// ReadStringFromUser copies a NUL-terminated C string out of guest memory
// starting at addr, stopping at maxByteCount bytes. It reports whether a
// terminating NUL was found within that bound, matching
// transfer.cc's ReadStringFromUser return value.
func ReadStringFromUser(mem GuestMemory, addr uint32, maxByteCount uint32) (string, bool, error) {
	if maxByteCount == 0 {
		return "", false, kernelerrors.New(kernelerrors.BadHandle, "syscall: maxByteCount must be positive")
	}

	buf := make([]byte, 0, maxByteCount)
	for count := uint32(0); count < maxByteCount; count++ {
		b, err := mem.ReadByte(addr)
		if err != nil {
			return "", false, err
		}
		addr++
		if b == 0 {
			return string(buf), true, nil
		}
		buf = append(buf, b)
	}
	return string(buf), false, nil
}

// ReadBufferFromUser copies byteCount bytes from guest memory starting at
// addr into a fresh host buffer.
func ReadBufferFromUser(mem GuestMemory, addr uint32, byteCount uint32) ([]byte, error) {
	buf := make([]byte, byteCount)
	for i := range buf {
		b, err := mem.ReadByte(addr)
		if err != nil {
			return nil, err
		}
		addr++
		buf[i] = b
	}
	return buf, nil
}

// WriteBufferToUser copies buf into guest memory starting at addr.
func WriteBufferToUser(mem GuestMemory, addr uint32, buf []byte) error {
	for _, b := range buf {
		if err := mem.WriteByte(addr, b); err != nil {
			return err
		}
		addr++
	}
	return nil
}

// WriteStringToUser copies s, followed by a terminating NUL, into guest
// memory starting at addr.
func WriteStringToUser(mem GuestMemory, addr uint32, s string) error {
	if err := WriteBufferToUser(mem, addr, []byte(s)); err != nil {
		return err
	}
	return mem.WriteByte(addr+uint32(len(s)), 0)
}
