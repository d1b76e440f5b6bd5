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

	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/stretchr/testify/require"
)

func TestFileTable_FindOrAddReturnsSameNode(t *testing.T) {
	ft := diskfs.NewFileTable()
	require.Nil(t, ft.Find(7))

	n1 := ft.FindOrAdd(7)
	n2 := ft.FindOrAdd(7)
	require.Same(t, n1, n2)
	require.Same(t, n1, ft.Find(7))
}

func TestFileTable_RemoveDropsNode(t *testing.T) {
	ft := diskfs.NewFileTable()
	ft.FindOrAdd(3)
	ft.Remove(3)
	require.Nil(t, ft.Find(3))
}

func TestFileNode_IncrefDecrefMarkForDelete(t *testing.T) {
	n := &diskfs.FileNode{Sector: 1}
	n.Incref()
	n.Incref()
	require.False(t, n.Decref())
	require.False(t, n.MarkForDelete()) // still one open reference
	require.True(t, n.IsMarkedForDelete())
	require.True(t, n.Decref()) // last closer, already marked
}

func TestFileNode_MarkForDeleteWithNoneOpen(t *testing.T) {
	n := &diskfs.FileNode{Sector: 1}
	require.True(t, n.MarkForDelete())
}
