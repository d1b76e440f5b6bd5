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
	"testing"

	"github.com/nachos-go/kernel/internal/bitmap"
	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/stretchr/testify/require"
)

func TestDirectory_AddFindRemove(t *testing.T) {
	d := diskfs.NewDirectory(2)
	require.True(t, d.Add("foo", 10, false))
	require.True(t, d.Add("bar", 11, true))
	require.False(t, d.Add("foo", 12, false), "duplicate name must be rejected")

	require.EqualValues(t, 10, d.Find("foo", false))
	require.EqualValues(t, 11, d.Find("bar", true))
	require.EqualValues(t, diskfs.SectorNone, d.Find("missing", false))

	entry, ok := d.FindAny("bar")
	require.True(t, ok)
	require.True(t, entry.IsDir)

	require.EqualValues(t, 10, d.Remove("foo"))
	require.EqualValues(t, diskfs.SectorNone, d.Remove("foo"))
}

func TestDirectory_GrowsWhenFull(t *testing.T) {
	d := diskfs.NewDirectory(1)
	require.True(t, d.Add("a", 1, false))
	require.True(t, d.Add("b", 2, false))
	require.True(t, d.Add("c", 3, false))
	require.EqualValues(t, 1, d.Find("a", false))
	require.EqualValues(t, 2, d.Find("b", false))
	require.EqualValues(t, 3, d.Find("c", false))
}

func TestDirectory_Empty(t *testing.T) {
	d := diskfs.NewDirectory(2)
	require.True(t, d.Empty())
	d.Add("a", 1, false)
	require.False(t, d.Empty())
	d.Remove("a")
	require.True(t, d.Empty())
}

func TestDirectory_FetchWriteBackRoundTrip(t *testing.T) {
	disk := newTestDisk(t, 1024)
	bm := bitmap.New(1024)

	n := diskfs.NewInode(diskfs.KindDir, testSectorSize)
	d := diskfs.NewDirectory(4)
	require.True(t, d.Add("alpha", 42, false))
	require.True(t, d.Add("beta", 43, true))

	ok, err := n.Allocate(bm, disk, 8+4*18) // directory header + 4 entries of 18 bytes each
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, n.WriteBack(disk, 200))

	file, err := diskfs.OpenFile(disk, bm, 200)
	require.NoError(t, err)
	require.NoError(t, d.WriteBack(file))

	file2, err := diskfs.OpenFile(disk, bm, 200)
	require.NoError(t, err)
	d2 := diskfs.NewDirectory(1)
	require.NoError(t, d2.FetchFrom(file2))

	got, ok := d2.FindAny("alpha")
	require.True(t, ok)
	require.EqualValues(t, 42, got.Sector)
	got, ok = d2.FindAny("beta")
	require.True(t, ok)
	require.True(t, got.IsDir)
}
