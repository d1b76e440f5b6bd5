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

// Package diskfs implements the on-disk file system: inodes (file
// headers) with direct and doubly-indirect data blocks, directories
// stored as regular files, a per-inode file table coordinating
// concurrent readers/writers, and the façade that ties path resolution,
// creation, and removal together. It is the Go-domain successor to the
// original kernel's filesys package (file_header.cc, directory.cc,
// filetable.cc, file_system.cc).
package diskfs

// SectorNone is the sentinel meaning "no sector assigned", matching the
// original kernel's NOT_ASSIGNED / NONE = 0xFFFFFFFF.
const SectorNone uint32 = 0xFFFFFFFF

// Kind distinguishes a file inode from a directory inode, a tagged-record
// field used in place of the source's duplicated, friend-comparator-laden
// Directory/FileHeader split.
type Kind uint32

const (
	KindFile Kind = 0
	KindDir  Kind = 1
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// sectorIO is the minimal disk contract diskfs needs: any of
// diskio.RawDisk, diskio.SyncDisk, or sectorcache.Cache satisfies it
// structurally, so callers can point the file system at whichever layer
// of the storage stack they want reads/writes to go through.
type sectorIO interface {
	ReadSector(sector uint32, data []byte) error
	WriteSector(sector uint32, data []byte) error
	SectorSize() uint32
	NumSectors() uint32
}

func divRoundUp(n, d uint32) uint32 {
	return (n + d - 1) / d
}
