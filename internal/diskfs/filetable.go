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

package diskfs

import "sync"

// FileNode is the file table's per-inode bookkeeping, keyed by the
// inode's sector number: how many open handles reference it, whether it
// should be deallocated once the last one closes, and the locks
// serializing concurrent access to the inode and (if it is a directory)
// its entry table.
//
// The original's File_Lock/Dir_Lock are full priority-donating Locks;
// this table's locks guard brief FetchFrom/WriteBack critical sections
// around file-system bookkeeping rather than user-level contention, so a
// plain sync.Mutex serves the same purpose without threading a thread
// identity through every file-system call (donation is reserved for
// internal/synch.Lock, used where priority inversion can actually occur
// between user-level threads).
type FileNode struct {
	Sector uint32

	mu sync.Mutex // guards the fields below

	OpenCount       int
	MarkedForDelete bool

	fileLock sync.Mutex
	dirLock  sync.Mutex
}

// LockFile serializes inode-level reads/writes for this sector.
func (n *FileNode) LockFile()   { n.fileLock.Lock() }
func (n *FileNode) UnlockFile() { n.fileLock.Unlock() }

// LockDir serializes directory-table mutations for this sector.
func (n *FileNode) LockDir()   { n.dirLock.Lock() }
func (n *FileNode) UnlockDir() { n.dirLock.Unlock() }

// FileTable maps inode sector numbers to their FileNode, the Go successor
// to the original kernel's Filetable.
type FileTable struct {
	mu    sync.Mutex
	nodes map[uint32]*FileNode
}

// NewFileTable returns an empty file table.
func NewFileTable() *FileTable {
	return &FileTable{nodes: make(map[uint32]*FileNode)}
}

// Find returns the node for sector, or nil if none has been created yet.
func (t *FileTable) Find(sector uint32) *FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodes[sector]
}

// FindOrAdd returns the node for sector, creating it if this is the first
// reference to that inode.
func (t *FileTable) FindOrAdd(sector uint32) *FileNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[sector]
	if !ok {
		n = &FileNode{Sector: sector}
		t.nodes[sector] = n
	}
	return n
}

// Remove drops sector's node entirely. Callers must ensure no one still
// holds a reference to it (OpenCount == 0 and it will never be reopened,
// i.e. the inode has been deallocated).
func (t *FileTable) Remove(sector uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, sector)
}

// Incref increments n's open count.
func (n *FileNode) Incref() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.OpenCount++
}

// Decref decrements n's open count and reports whether it reached zero
// while MarkedForDelete was set — i.e. whether the caller, as the last
// closer, is now responsible for actually deallocating the inode.
func (n *FileNode) Decref() (shouldDelete bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.OpenCount--
	return n.OpenCount == 0 && n.MarkedForDelete
}

// MarkForDelete sets the deferred-delete flag and reports whether the
// inode is already unreferenced (in which case the caller should
// deallocate it immediately rather than waiting for a Decref).
func (n *FileNode) MarkForDelete() (deallocateNow bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.MarkedForDelete = true
	return n.OpenCount == 0
}

// IsMarkedForDelete reports the node's deferred-delete flag.
func (n *FileNode) IsMarkedForDelete() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.MarkedForDelete
}
