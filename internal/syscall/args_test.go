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
	"testing"

	syscall "github.com/nachos-go/kernel/internal/syscall"
	"github.com/stretchr/testify/require"
)

func TestWriteArgsSaveArgsRoundTrip(t *testing.T) {
	mem := newFakeGuestMemory(4096)
	args := []string{"echo", "hello", "world"}

	argc, argv, sp, err := syscall.WriteArgs(mem, 2048, args)
	require.NoError(t, err)
	require.EqualValues(t, len(args), argc)
	require.Less(t, sp, argv)

	got, err := syscall.SaveArgs(mem, argv)
	require.NoError(t, err)
	require.Equal(t, args, got)
}

func TestWriteArgsSaveArgsRoundTrip_NoArguments(t *testing.T) {
	mem := newFakeGuestMemory(4096)

	argc, argv, _, err := syscall.WriteArgs(mem, 2048, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, argc)

	got, err := syscall.SaveArgs(mem, argv)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSaveArgs_RejectsUnterminatedVector(t *testing.T) {
	mem := newFakeGuestMemory(8192)
	// Fill MaxArgCount pointer slots with a non-zero value: no terminator.
	for i := 0; i < syscall.MaxArgCount; i++ {
		addr := uint32(i * 4)
		require.NoError(t, mem.WriteByte(addr, 1))
	}

	_, err := syscall.SaveArgs(mem, 0)
	require.Error(t, err)
}
