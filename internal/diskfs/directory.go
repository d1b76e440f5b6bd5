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

import (
	"encoding/binary"
	"fmt"
)

// FileNameMaxLen is the longest a single path component may be (spec §6).
const FileNameMaxLen = 9

// directoryEntrySize is the on-disk size, in bytes, of one DirectoryEntry:
// inUse(1) + isDir(1) + 2 bytes padding + sector(4) + name(FileNameMaxLen+1).
const directoryEntrySize = 1 + 1 + 2 + 4 + (FileNameMaxLen + 1)

// DirectoryEntry is one (name, sector) binding inside a directory's table.
type DirectoryEntry struct {
	InUse  bool
	IsDir  bool
	Sector uint32
	Name   string
}

func (e *DirectoryEntry) encode(buf []byte) {
	if e.InUse {
		buf[0] = 1
	}
	if e.IsDir {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], e.Sector)
	name := []byte(e.Name)
	if len(name) > FileNameMaxLen {
		name = name[:FileNameMaxLen]
	}
	copy(buf[8:8+FileNameMaxLen], name)
	buf[8+FileNameMaxLen] = 0
}

func (e *DirectoryEntry) decode(buf []byte) {
	e.InUse = buf[0] != 0
	e.IsDir = buf[1] != 0
	e.Sector = binary.LittleEndian.Uint32(buf[4:8])
	end := 8
	for end < 8+FileNameMaxLen && buf[end] != 0 {
		end++
	}
	e.Name = string(buf[8:end])
}

// Directory is the in-memory form of a directory's file content: a table
// of DirectoryEntry, grown by a fixed increment when full (spec §4.4).
type Directory struct {
	entries []DirectoryEntry
	sector  uint32
}

// NewDirectory returns an empty directory with room for size entries.
func NewDirectory(size int) *Directory {
	if size <= 0 {
		size = 1
	}
	return &Directory{entries: make([]DirectoryEntry, size), sector: SectorNone}
}

// extendBy grows the entry table by extra slots, all initially unused.
func (d *Directory) extendBy(extra int) int {
	old := len(d.entries)
	grown := make([]DirectoryEntry, old+extra)
	copy(grown, d.entries)
	d.entries = grown
	return old
}

// findIndex returns the index of the entry matching (name, isDir), or -1.
func (d *Directory) findIndex(name string, isDir bool) int {
	for i, e := range d.entries {
		if e.InUse && e.IsDir == isDir && e.Name == name {
			return i
		}
	}
	return -1
}

// Find returns the sector of the FileHeader for name, or SectorNone if not
// present with the given isDir tag.
func (d *Directory) Find(name string, isDir bool) uint32 {
	if i := d.findIndex(name, isDir); i != -1 {
		return d.entries[i].Sector
	}
	return SectorNone
}

// FindAny returns the entry matching name regardless of isDir, preferring
// a file entry over a directory entry if (pathologically) both exist —
// matching the source's Remove lookup order.
func (d *Directory) FindAny(name string) (DirectoryEntry, bool) {
	if i := d.findIndex(name, false); i != -1 {
		return d.entries[i], true
	}
	if i := d.findIndex(name, true); i != -1 {
		return d.entries[i], true
	}
	return DirectoryEntry{}, false
}

// Add inserts name -> newSector into the directory, growing the table if
// full. It returns false if name is already present (as either a file or
// a directory entry).
func (d *Directory) Add(name string, newSector uint32, isDir bool) bool {
	if d.findIndex(name, true) != -1 || d.findIndex(name, false) != -1 {
		return false
	}

	idx := -1
	for i, e := range d.entries {
		if !e.InUse {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = d.extendBy(2)
	}

	d.entries[idx] = DirectoryEntry{InUse: true, IsDir: isDir, Sector: newSector, Name: name}
	return true
}

// Remove clears name's entry (preferring a file entry over a directory
// entry when both happen to match, per the source) and returns the
// sector it pointed to, or SectorNone if name was not present.
func (d *Directory) Remove(name string) uint32 {
	i := d.findIndex(name, false)
	if i == -1 {
		i = d.findIndex(name, true)
	}
	if i == -1 {
		return SectorNone
	}
	sector := d.entries[i].Sector
	d.entries[i] = DirectoryEntry{}
	return sector
}

// Entries returns the directory's entries in table order, including
// unused slots. Callers should check InUse.
func (d *Directory) Entries() []DirectoryEntry {
	return d.entries
}

// Empty reports whether the directory has no in-use entries.
func (d *Directory) Empty() bool {
	for _, e := range d.entries {
		if e.InUse {
			return false
		}
	}
	return true
}

func (d *Directory) encode() []byte {
	size := len(d.entries)
	buf := make([]byte, 8+size*directoryEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	for i, e := range d.entries {
		off := 8 + i*directoryEntrySize
		e.encode(buf[off : off+directoryEntrySize])
	}
	return buf
}

func (d *Directory) decode(buf []byte) error {
	if len(buf) < 8 {
		return fmt.Errorf("diskfs: directory content too short: %d bytes", len(buf))
	}
	size := binary.LittleEndian.Uint32(buf[0:4])
	need := 8 + int(size)*directoryEntrySize
	if len(buf) < need {
		return fmt.Errorf("diskfs: directory content truncated: have %d, need %d", len(buf), need)
	}
	d.entries = make([]DirectoryEntry, size)
	for i := range d.entries {
		off := 8 + i*directoryEntrySize
		d.entries[i].decode(buf[off : off+directoryEntrySize])
	}
	return nil
}

// contentSize returns how many bytes encode() produces, for callers that
// need to size the backing inode before the first WriteBack.
func (d *Directory) contentSize() uint32 {
	return uint32(8 + len(d.entries)*directoryEntrySize)
}

// FetchFrom reads the directory's table out of file's content.
func (d *Directory) FetchFrom(file *File) error {
	buf := make([]byte, file.Length())
	if _, err := file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("diskfs: directory: fetch: %w", err)
	}
	if err := d.decode(buf); err != nil {
		return err
	}
	d.sector = file.Sector()
	return nil
}

// WriteBack writes the directory's table into file's content.
func (d *Directory) WriteBack(file *File) error {
	if _, err := file.WriteAt(d.encode(), 0); err != nil {
		return fmt.Errorf("diskfs: directory: write back: %w", err)
	}
	return nil
}
