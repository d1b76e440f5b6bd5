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

import "github.com/nachos-go/kernel/internal/kernelerrors"

// MaxArgCount is the largest argv vector Exec will marshal, matching
// args.cc's MAX_ARG_COUNT.
const MaxArgCount = 32

// MaxArgLength is the longest single argument string Exec will marshal,
// matching args.cc's MAX_ARG_LENGTH.
const MaxArgLength = 128

func readUint32(mem GuestMemory, addr uint32) (uint32, error) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, err := mem.ReadByte(addr + i)
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

func writeUint32(mem GuestMemory, addr, v uint32) error {
	for i := uint32(0); i < 4; i++ {
		if err := mem.WriteByte(addr+i, byte(v>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// SaveArgs reads a NULL-terminated argv vector (an array of guest
// pointers) out of the parent's guest memory starting at address, and
// copies each pointed-to string into the host, matching args.cc's
// SaveArgs. It is the parent-side half of Exec's argument passing.
func SaveArgs(mem GuestMemory, address uint32) ([]string, error) {
	var ptrs []uint32
	for i := uint32(0); i < MaxArgCount; i++ {
		val, err := readUint32(mem, address+i*4)
		if err != nil {
			return nil, err
		}
		if val == 0 {
			break
		}
		ptrs = append(ptrs, val)
	}
	if len(ptrs) == MaxArgCount {
		return nil, kernelerrors.New(kernelerrors.BadHandle, "syscall: argv has no terminating null within %d entries", MaxArgCount)
	}

	args := make([]string, len(ptrs))
	for i, p := range ptrs {
		s, _, err := ReadStringFromUser(mem, p, MaxArgLength)
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	return args, nil
}

// WriteArgs lays args out on the child's stack (starting at initialSP,
// growing down), matching args.cc's WriteArgs: each string is written
// below the previous stack pointer, followed by a 4-byte-aligned,
// NULL-terminated pointer array, with 16 bytes reserved above that for
// register saves. It returns the argument count, the guest address of the
// argv pointer array, and the stack pointer the child should start with.
func WriteArgs(mem GuestMemory, initialSP uint32, args []string) (argc, argv, sp uint32, err error) {
	sp = initialSP
	argAddrs := make([]uint32, len(args))
	for i, a := range args {
		sp -= uint32(len(a)) + 1
		if err := WriteStringToUser(mem, sp, a); err != nil {
			return 0, 0, 0, err
		}
		argAddrs[i] = sp
	}

	argc = uint32(len(args))
	sp -= sp % 4 // align the stack to a multiple of four
	sp -= argc*4 + 4
	argv = sp
	for j, addr := range argAddrs {
		if err := writeUint32(mem, sp+4*uint32(j), addr); err != nil {
			return 0, 0, 0, err
		}
	}
	if err := writeUint32(mem, sp+4*argc, 0); err != nil {
		return 0, 0, 0, err
	}

	sp -= 16 // room for the register saves
	return argc, argv, sp, nil
}
