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
	"fmt"

	"github.com/nachos-go/kernel/internal/bitmap"
)

// File is a sector-addressable view onto one inode's data, the Go
// successor to the original kernel's OpenFile. Directories are stored as
// regular file content (spec §4.4), so Directory.FetchFrom/WriteBack work
// in terms of a File.
type File struct {
	disk   sectorIO
	bm     *bitmap.Bitmap
	inode  *Inode
	sector uint32
}

// OpenFile reads the inode at sector and wraps it for random access. bm
// is used to satisfy automatic extension on writes past the current
// length; it may be nil for read-only callers.
func OpenFile(disk sectorIO, bm *bitmap.Bitmap, sector uint32) (*File, error) {
	n := NewInode(KindFile, disk.SectorSize())
	if err := n.FetchFrom(disk, sector); err != nil {
		return nil, err
	}
	return &File{disk: disk, bm: bm, inode: n, sector: sector}, nil
}

// Inode returns the file's backing inode.
func (f *File) Inode() *Inode { return f.inode }

// Sector returns the disk sector holding the file's inode.
func (f *File) Sector() uint32 { return f.sector }

// Length returns the file's logical size in bytes.
func (f *File) Length() uint32 { return f.inode.NumBytes }

// ReadAt reads up to len(buf) bytes starting at offset, returning the
// number of bytes actually read (fewer than len(buf) at EOF).
func (f *File) ReadAt(buf []byte, offset uint32) (int, error) {
	if offset >= f.inode.NumBytes {
		return 0, nil
	}
	end := offset + uint32(len(buf))
	if end > f.inode.NumBytes {
		end = f.inode.NumBytes
	}

	sectorSize := f.disk.SectorSize()
	n := 0
	for pos := offset; pos < end; {
		sector, err := f.inode.ByteToSector(f.disk, pos)
		if err != nil {
			return n, err
		}
		if sector == SectorNone {
			return n, fmt.Errorf("diskfs: file: hole at offset %d", pos)
		}
		sectorBuf := make([]byte, sectorSize)
		if err := f.disk.ReadSector(sector, sectorBuf); err != nil {
			return n, err
		}
		within := pos % sectorSize
		chunk := sectorSize - within
		if pos+chunk > end {
			chunk = end - pos
		}
		copy(buf[n:], sectorBuf[within:within+chunk])
		n += int(chunk)
		pos += chunk
	}
	return n, nil
}

// WriteAt writes buf at offset, extending the file (via the bitmap
// supplied to OpenFile) if the write reaches past the current length.
func (f *File) WriteAt(buf []byte, offset uint32) (int, error) {
	end := offset + uint32(len(buf))
	if end > f.inode.NumBytes {
		if f.bm == nil {
			return 0, fmt.Errorf("diskfs: file: write past EOF without a bitmap to extend with")
		}
		extra := end - f.inode.FileLength()
		if int32(extra) > 0 {
			ok, err := f.inode.Extend(f.bm, f.disk, extra)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, fmt.Errorf("diskfs: file: no space to extend to %d bytes", end)
			}
		}
		f.inode.NumBytes = end
	}

	sectorSize := f.disk.SectorSize()
	n := 0
	for pos := offset; pos < end; {
		sector, err := f.inode.ByteToSector(f.disk, pos)
		if err != nil {
			return n, err
		}
		if sector == SectorNone {
			return n, fmt.Errorf("diskfs: file: write target sector missing at offset %d", pos)
		}
		within := pos % sectorSize
		chunk := sectorSize - within
		if pos+chunk > end {
			chunk = end - pos
		}

		sectorBuf := make([]byte, sectorSize)
		if within != 0 || chunk != sectorSize {
			if err := f.disk.ReadSector(sector, sectorBuf); err != nil {
				return n, err
			}
		}
		copy(sectorBuf[within:within+chunk], buf[n:n+int(chunk)])
		if err := f.disk.WriteSector(sector, sectorBuf); err != nil {
			return n, err
		}
		n += int(chunk)
		pos += chunk
	}

	return n, f.inode.WriteBack(f.disk, f.sector)
}
