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
	"os"
	"testing"

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/diskio"
	"github.com/stretchr/testify/require"
)

const (
	testSectorSize = 128
	testPageSize   = 64
)

func newTestFS(t *testing.T, numSectors uint32) *diskfs.FileSystem {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "disk-*.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(testSectorSize)*int64(numSectors)))
	t.Cleanup(func() { f.Close() })
	disk := diskio.NewFileDisk(f, testSectorSize, numSectors)
	fs, err := diskfs.Format(disk, false)
	require.NoError(t, err)
	return fs
}

// fakeExecutable is an in-memory Executable backing a NOFF program: one
// page of code, one page of initialized data, and everything else
// (uninitialized data, stack) zero-filled on first touch.
type fakeExecutable struct {
	data []byte
}

func (e *fakeExecutable) Read(buf []byte, offset uint32) (int, error) {
	n := copy(buf, e.data[offset:])
	return n, nil
}

func newFakeExecutable(t *testing.T, codeByte, dataByte byte) (*fakeExecutable, Header) {
	t.Helper()
	code := Segment{Size: testPageSize, VirtualAddr: 0, InFileAddr: noffHeaderSize}
	initData := Segment{Size: testPageSize, VirtualAddr: testPageSize, InFileAddr: noffHeaderSize + testPageSize}

	data := buildNOFF(code, initData, Segment{})
	codePage := make([]byte, testPageSize)
	for i := range codePage {
		codePage[i] = codeByte
	}
	dataPage := make([]byte, testPageSize)
	for i := range dataPage {
		dataPage[i] = dataByte
	}
	data = append(data, codePage...)
	data = append(data, dataPage...)

	h, err := DecodeHeader(data)
	require.NoError(t, err)
	return &fakeExecutable{data: data}, h
}

func TestAddressSpace_LoadsCodeAndDataSegmentsOnFirstTouch(t *testing.T) {
	fs := newTestFS(t, 4096)
	sys := NewPagingSystem(8, testPageSize, "/swap")
	exe, _ := newFakeExecutable(t, 0xAA, 0xBB)

	as, err := NewAddressSpace(exe, sys, fs, "/swap", DefaultUserStackSize)
	require.NoError(t, err)

	codePPN, err := as.Translate(0, false)
	require.NoError(t, err)
	buf := make([]byte, testPageSize)
	sys.ReadFrame(codePPN, buf)
	require.Equal(t, byte(0xAA), buf[0])

	dataPPN, err := as.Translate(1, false)
	require.NoError(t, err)
	require.NotEqual(t, codePPN, dataPPN)
	sys.ReadFrame(dataPPN, buf)
	require.Equal(t, byte(0xBB), buf[0])
}

func TestAddressSpace_StackPageIsZeroFilled(t *testing.T) {
	fs := newTestFS(t, 4096)
	sys := NewPagingSystem(8, testPageSize, "/swap")
	exe, _ := newFakeExecutable(t, 0xAA, 0xBB)

	as, err := NewAddressSpace(exe, sys, fs, "/swap", DefaultUserStackSize)
	require.NoError(t, err)

	lastPage := as.NumPages() - 1
	ppn, err := as.Translate(lastPage, true)
	require.NoError(t, err)
	buf := make([]byte, testPageSize)
	sys.ReadFrame(ppn, buf)
	for _, b := range buf {
		require.EqualValues(t, 0, b)
	}
}

func TestAddressSpace_EvictsLRUWhenFramesExhausted(t *testing.T) {
	fs := newTestFS(t, 8192)
	sys := NewPagingSystem(1, testPageSize, "/swap") // exactly one frame: forces eviction on the second page
	exe, _ := newFakeExecutable(t, 0xAA, 0xBB)

	as, err := NewAddressSpace(exe, sys, fs, "/swap", DefaultUserStackSize)
	require.NoError(t, err)
	require.Greater(t, as.NumPages(), uint32(1))

	ppn0, err := as.Translate(0, false)
	require.NoError(t, err)

	// Loading page 1 must evict page 0's frame (the only one there is).
	ppn1, err := as.Translate(1, false)
	require.NoError(t, err)
	require.Equal(t, ppn0, ppn1, "with a single frame, the victim's frame is reused")

	// Page 0 must have been swapped out and faults back in correctly.
	backPPN, err := as.Translate(0, false)
	require.NoError(t, err)
	buf := make([]byte, testPageSize)
	sys.ReadFrame(backPPN, buf)
	require.Equal(t, byte(0xAA), buf[0])
}

func TestAddressSpace_TranslateRejectsOutOfRangeVPN(t *testing.T) {
	fs := newTestFS(t, 4096)
	sys := NewPagingSystem(8, testPageSize, "/swap")
	exe, _ := newFakeExecutable(t, 0xAA, 0xBB)

	as, err := NewAddressSpace(exe, sys, fs, "/swap", DefaultUserStackSize)
	require.NoError(t, err)

	_, err = as.Translate(as.NumPages()+100, false)
	require.Error(t, err)
}

func TestAddressSpace_DestroyFreesFramesAndSwap(t *testing.T) {
	fs := newTestFS(t, 4096)
	sys := NewPagingSystem(8, testPageSize, "/swap")
	exe, _ := newFakeExecutable(t, 0xAA, 0xBB)

	as, err := NewAddressSpace(exe, sys, fs, "/swap", DefaultUserStackSize)
	require.NoError(t, err)

	_, err = as.Translate(0, false)
	require.NoError(t, err)
	before := sys.NumFreeFrames()

	require.NoError(t, as.Destroy())
	require.Greater(t, sys.NumFreeFrames(), before)
}
