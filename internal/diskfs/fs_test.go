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

package diskfs_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/kernelerrors"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, numSectors uint32) *diskfs.FileSystem {
	t.Helper()
	disk := newTestDisk(t, numSectors)
	fs, err := diskfs.Format(disk, false)
	require.NoError(t, err)
	return fs
}

func TestFormat_RootExists(t *testing.T) {
	fs := newTestFS(t, 2048)
	info, err := fs.Stat("/")
	require.NoError(t, err)
	require.True(t, info.IsDir)
}

func TestCreateAndOpenWriteRead(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Create("/foo"))

	h, err := fs.Open("/foo")
	require.NoError(t, err)

	payload := []byte("hello, nachos")
	n, err := h.Write(payload, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = h.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
	require.NoError(t, h.Close())
}

func TestCreate_RejectsDuplicateName(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Create("/foo"))
	err := fs.Create("/foo")
	require.True(t, kernelerrors.Is(err, kernelerrors.AlreadyExists))
}

func TestOpen_NotFound(t *testing.T) {
	fs := newTestFS(t, 2048)
	_, err := fs.Open("/nope")
	require.True(t, kernelerrors.Is(err, kernelerrors.NotFound))
}

func TestRemove_DeferredUntilLastClose(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Create("/foo"))
	h, err := fs.Open("/foo")
	require.NoError(t, err)

	require.NoError(t, fs.Remove("/foo"))

	// The name is already gone even though the inode is still open.
	_, err = fs.Open("/foo")
	require.True(t, kernelerrors.Is(err, kernelerrors.NotFound))

	require.NoError(t, h.Close())
}

func TestMkdirAndNestedCreate(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/dir"))

	info, err := fs.Stat("/dir")
	require.NoError(t, err)
	require.True(t, info.IsDir)

	require.NoError(t, fs.Create("/dir/file"))
	info, err = fs.Stat("/dir/file")
	require.NoError(t, err)
	require.False(t, info.IsDir)
	require.Zero(t, info.Length)

	h, err := fs.Open("/dir/file")
	require.NoError(t, err)
	_, err = h.Write([]byte("nested"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	info, err = fs.Stat("/dir/file")
	require.NoError(t, err)
	require.EqualValues(t, len("nested"), info.Length)
}

func TestRmdir_RejectsRoot(t *testing.T) {
	fs := newTestFS(t, 2048)
	err := fs.Rmdir("/")
	require.True(t, kernelerrors.Is(err, kernelerrors.BadPath))
}

func TestRmdir_RecursivelyRemovesContents(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/dir"))
	require.NoError(t, fs.Create("/dir/a"))
	require.NoError(t, fs.Create("/dir/b"))
	require.NoError(t, fs.Mkdir("/dir/sub"))
	require.NoError(t, fs.Create("/dir/sub/c"))

	require.NoError(t, fs.Rmdir("/dir"))

	_, err := fs.Stat("/dir")
	require.True(t, kernelerrors.Is(err, kernelerrors.NotFound))
}

func TestWalk_VisitsEveryEntryConcurrently(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/dir"))
	require.NoError(t, fs.Create("/dir/a"))
	require.NoError(t, fs.Create("/dir/b"))
	require.NoError(t, fs.Mkdir("/dir/sub"))
	require.NoError(t, fs.Create("/dir/sub/c"))
	require.NoError(t, fs.Create("/top"))

	var mu sync.Mutex
	seen := map[string]bool{}
	err := fs.Walk(func(path string, info diskfs.FileInfo) error {
		mu.Lock()
		seen[path] = info.IsDir
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, map[string]bool{
		"/dir":     true,
		"/dir/a":   false,
		"/dir/b":   false,
		"/dir/sub": true,
		"/dir/sub/c": false,
		"/top":     false,
	}, seen)
}

func TestWalk_PropagatesVisitError(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Create("/broken"))

	boom := errors.New("boom")
	err := fs.Walk(func(path string, info diskfs.FileInfo) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

// TestWrite_TwoHandlesSequentialExtendsDoNotClobber opens the same file
// twice and extends it through each handle in turn. Each Write must see
// the other handle's already-committed extension, not just its own
// handle-local copy of the inode fetched back at Open time; otherwise the
// second extend recomputes "sectors already owned" from a stale
// NumSectors/DataSectors and double-allocates or overwrites the first
// extend's bitmap bits.
func TestWrite_TwoHandlesSequentialExtendsDoNotClobber(t *testing.T) {
	fs := newTestFS(t, 4096)
	require.NoError(t, fs.Create("/shared"))

	h1, err := fs.Open("/shared")
	require.NoError(t, err)
	h2, err := fs.Open("/shared")
	require.NoError(t, err)

	first := []byte("first handle's payload, long enough to span sectors..")
	n, err := h1.Write(first, 0)
	require.NoError(t, err)
	require.Equal(t, len(first), n)

	second := []byte("second handle's payload")
	offset := uint32(len(first))
	n, err = h2.Write(second, offset)
	require.NoError(t, err)
	require.Equal(t, len(second), n)

	require.EqualValues(t, len(first)+len(second), h2.Length())

	buf := make([]byte, len(first)+len(second))
	n, err = h1.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, append(append([]byte{}, first...), second...), buf)

	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())
}

// TestWrite_ConcurrentHandlesExtendWithoutCorruption hammers the same
// file from many goroutines, each through its own Handle, to catch the
// same clobbering bug under contention rather than just in sequence.
func TestWrite_ConcurrentHandlesExtendWithoutCorruption(t *testing.T) {
	fs := newTestFS(t, 8192)
	require.NoError(t, fs.Create("/hammered"))

	const (
		numHandles  = 8
		chunkLength = 37
	)

	var wg sync.WaitGroup
	for i := 0; i < numHandles; i++ {
		h, err := fs.Open("/hammered")
		require.NoError(t, err)

		wg.Add(1)
		go func(h *diskfs.Handle, i int) {
			defer wg.Done()
			chunk := make([]byte, chunkLength)
			for j := range chunk {
				chunk[j] = byte(i)
			}
			_, err := h.Write(chunk, uint32(i*chunkLength))
			require.NoError(t, err)
			require.NoError(t, h.Close())
		}(h, i)
	}
	wg.Wait()

	info, err := fs.Stat("/hammered")
	require.NoError(t, err)
	require.EqualValues(t, numHandles*chunkLength, info.Length)

	h, err := fs.Open("/hammered")
	require.NoError(t, err)
	buf := make([]byte, numHandles*chunkLength)
	n, err := h.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.NoError(t, h.Close())

	for i := 0; i < numHandles; i++ {
		want := make([]byte, chunkLength)
		for j := range want {
			want[j] = byte(i)
		}
		require.Equal(t, want, buf[i*chunkLength:(i+1)*chunkLength], "chunk %d corrupted", i)
	}
}
