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
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/diskio"
	syscall "github.com/nachos-go/kernel/internal/syscall"
	"github.com/nachos-go/kernel/internal/threads"
	"github.com/nachos-go/kernel/internal/vm"
	"github.com/stretchr/testify/require"
)

const (
	testSectorSize = 128
	testPageSize   = 64
	noffMagic      = 0xbadfad
)

// minimalNOFF builds a valid, empty NOFF header (no code or data bytes, a
// plain stack-only address space) — enough for Exec to build an
// AddressSpace without needing real guest instructions, since the tests
// here never execute one (ProgramEntry is supplied by the test itself).
func minimalNOFF() []byte {
	buf := make([]byte, 4+3*12)
	binary.LittleEndian.PutUint32(buf[0:4], noffMagic)
	return buf
}

func newTestDispatcher(t *testing.T) (*syscall.Dispatcher, *vm.PagingSystem) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "disk-*.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(testSectorSize*4096))
	t.Cleanup(func() { f.Close() })

	disk := diskio.NewFileDisk(f, testSectorSize, 4096)
	fs, err := diskfs.Format(disk, false)
	require.NoError(t, err)

	require.NoError(t, fs.Create("/init"))
	h, err := fs.Open("/init")
	require.NoError(t, err)
	_, err = h.Write(minimalNOFF(), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	sched := threads.NewScheduler()
	paging := vm.NewPagingSystem(16, testPageSize, "/swap")
	console := syscall.IOConsole{W: &bytes.Buffer{}, R: bytes.NewReader(nil)}
	return syscall.NewDispatcher(fs, sched, paging, "/swap", console), paging
}

func TestDispatcher_CreateOpenWriteReadClose(t *testing.T) {
	d, _ := newTestDispatcher(t)

	pid, err := d.Exec("/init", nil, true, func(proc *syscall.Process) int {
		require.True(t, d.Create("/greeting"))
		id := d.Open(proc, "/greeting")
		require.GreaterOrEqual(t, int(id), 0)

		n := d.Write(proc, []byte("hi"), id)
		require.Equal(t, 2, n)

		d.Close(proc, id)
		id2 := d.Open(proc, "/greeting")
		buf := make([]byte, 2)
		n = d.Read(proc, buf, id2)
		require.Equal(t, 2, n)
		require.Equal(t, "hi", string(buf))
		d.Close(proc, id2)

		d.Exit(proc, 0)
		return 0
	})
	require.NoError(t, err)
	_, err = d.Join(pid)
	require.NoError(t, err)
}

func TestDispatcher_RemoveAndCreateRejectsMissing(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.True(t, d.Create("/to-remove"))
	require.True(t, d.Remove("/to-remove"))
	require.False(t, d.Remove("/to-remove"))
}

func TestDispatcher_ExecJoinReturnsExitStatus(t *testing.T) {
	d, _ := newTestDispatcher(t)

	pid, err := d.Exec("/init", nil, true, func(proc *syscall.Process) int {
		d.Exit(proc, 42)
		return 42
	})
	require.NoError(t, err)

	status, err := d.Join(pid)
	require.NoError(t, err)
	require.Equal(t, 42, status)
}

func TestDispatcher_JoinRejectsUnknownPID(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Join(syscall.SpaceId(999))
	require.Error(t, err)
}

func TestDispatcher_ForkSharesOpenFiles(t *testing.T) {
	d, _ := newTestDispatcher(t)

	pid, err := d.Exec("/init", nil, true, func(parent *syscall.Process) int {
		require.True(t, d.Create("/shared"))
		id := d.Open(parent, "/shared")
		require.Equal(t, 0, d.Write(parent, nil, id))

		childDone := make(chan int, 1)
		d.Fork(parent, false, func(child *syscall.Process) int {
			n := d.Write(child, []byte("from-child"), id)
			childDone <- n
			return 0
		})
		n := <-childDone
		require.Equal(t, len("from-child"), n)

		d.Close(parent, id)
		d.Exit(parent, 7)
		return 7
	})
	require.NoError(t, err)

	status, err := d.Join(pid)
	require.NoError(t, err)
	require.Equal(t, 7, status)
}
