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

	"github.com/nachos-go/kernel/internal/bitmap"
)

// Inode is the in-memory form of a file header: the on-disk record that
// locates a file's data blocks, grounded on the original kernel's
// RawFileHeader plus a Kind tag distinguishing files from directories.
type Inode struct {
	Kind         Kind
	UnrefSectors uint32 // sector holding the indirect-1 block, or SectorNone
	NumBytes     uint32
	NumSectors   uint32
	DataSectors  []uint32 // length numDirect(sectorSize); SectorNone where unused

	sector     uint32 // sector this inode was last read from/written to
	sectorSize uint32
}

// numDirect is how many direct block pointers fit in one sector's inode
// record: sectorSize/4 words, minus the 4 header words (kind, unref,
// numBytes, numSectors).
func numDirect(sectorSize uint32) uint32 {
	return sectorSize/4 - 4
}

// fanout is how many sector numbers one indirect block holds.
func fanout(sectorSize uint32) uint32 {
	return sectorSize / 4
}

// NewInode returns a fresh, unallocated inode of the given kind, sized for
// the given sector size.
func NewInode(kind Kind, sectorSize uint32) *Inode {
	nd := numDirect(sectorSize)
	data := make([]uint32, nd)
	for i := range data {
		data[i] = SectorNone
	}
	return &Inode{
		Kind:         kind,
		UnrefSectors: SectorNone,
		DataSectors:  data,
		sector:       SectorNone,
		sectorSize:   sectorSize,
	}
}

// FileLength returns the number of bytes the inode's data sectors can
// hold, mirroring the original's FileHeader::FileLength (a multiple of
// the sector size, not the exact byte count — NumBytes is that).
func (n *Inode) FileLength() uint32 {
	return n.NumSectors * n.sectorSize
}

func (n *Inode) encode() []byte {
	buf := make([]byte, n.sectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n.Kind))
	binary.LittleEndian.PutUint32(buf[4:8], n.UnrefSectors)
	binary.LittleEndian.PutUint32(buf[8:12], n.NumBytes)
	binary.LittleEndian.PutUint32(buf[12:16], n.NumSectors)
	for i, s := range n.DataSectors {
		off := 16 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], s)
	}
	return buf
}

func (n *Inode) decode(buf []byte) {
	n.Kind = Kind(binary.LittleEndian.Uint32(buf[0:4]))
	n.UnrefSectors = binary.LittleEndian.Uint32(buf[4:8])
	n.NumBytes = binary.LittleEndian.Uint32(buf[8:12])
	n.NumSectors = binary.LittleEndian.Uint32(buf[12:16])
	nd := numDirect(n.sectorSize)
	n.DataSectors = make([]uint32, nd)
	for i := range n.DataSectors {
		off := 16 + i*4
		n.DataSectors[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
}

// FetchFrom reads the inode back from sector.
func (n *Inode) FetchFrom(disk sectorIO, sector uint32) error {
	n.sectorSize = disk.SectorSize()
	buf := make([]byte, n.sectorSize)
	if err := disk.ReadSector(sector, buf); err != nil {
		return fmt.Errorf("diskfs: fetch inode from sector %d: %w", sector, err)
	}
	n.decode(buf)
	n.sector = sector
	return nil
}

// WriteBack writes the inode's current contents to sector.
func (n *Inode) WriteBack(disk sectorIO, sector uint32) error {
	n.sector = sector
	if err := disk.WriteSector(sector, n.encode()); err != nil {
		return fmt.Errorf("diskfs: write back inode to sector %d: %w", sector, err)
	}
	return nil
}

// readIndirect reads a sector's worth of uint32 sector numbers.
func readIndirect(disk sectorIO, sector uint32) ([]uint32, error) {
	n := fanout(disk.SectorSize())
	buf := make([]byte, disk.SectorSize())
	if err := disk.ReadSector(sector, buf); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return out, nil
}

func writeIndirect(disk sectorIO, sector uint32, entries []uint32) error {
	buf := make([]byte, disk.SectorSize())
	for i, s := range entries {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], s)
	}
	return disk.WriteSector(sector, buf)
}

func newIndirectBlock(n uint32) []uint32 {
	entries := make([]uint32, n)
	for i := range entries {
		entries[i] = SectorNone
	}
	return entries
}

// OccupiedSectors returns every sector this inode's data consumes: direct
// data sectors, the indirect-1 block sector and its entries, and each
// indirect-2 block sector reached from it. This is every sector a
// consistency check must account for in the free-sector bitmap on this
// inode's behalf, the same set file_header.cc's CheckFileHeader walks one
// rh->dataSectors[i] at a time.
func (n *Inode) OccupiedSectors(disk sectorIO) ([]uint32, error) {
	nd := numDirect(disk.SectorSize())
	fanN := fanout(disk.SectorSize())

	direct := n.NumSectors
	if direct > nd {
		direct = nd
	}
	sectors := make([]uint32, 0, n.NumSectors+2)
	for i := uint32(0); i < direct; i++ {
		sectors = append(sectors, n.DataSectors[i])
	}
	if n.NumSectors <= nd {
		return sectors, nil
	}

	sectors = append(sectors, n.UnrefSectors)
	lvl1, err := readIndirect(disk, n.UnrefSectors)
	if err != nil {
		return nil, err
	}
	remaining := n.NumSectors - nd
	for _, l1 := range lvl1 {
		if remaining == 0 {
			break
		}
		if l1 == SectorNone {
			continue
		}
		sectors = append(sectors, l1)
		lvl2, err := readIndirect(disk, l1)
		if err != nil {
			return nil, err
		}
		for _, s := range lvl2 {
			if remaining == 0 {
				break
			}
			if s == SectorNone {
				continue
			}
			sectors = append(sectors, s)
			remaining--
		}
	}
	return sectors, nil
}

// Allocate sizes the inode for fileSize bytes, claiming sectors from bm
// and zero-filling each newly claimed data sector. It returns false,
// leaving bm as the caller's snapshot, if there is not enough free space —
// callers must discard the in-memory bitmap mutations on that path rather
// than persisting them (spec §4.3).
func (n *Inode) Allocate(bm *bitmap.Bitmap, disk sectorIO, fileSize uint32) (bool, error) {
	nd := numDirect(disk.SectorSize())
	for i := range n.DataSectors {
		n.DataSectors[i] = SectorNone
	}
	n.UnrefSectors = SectorNone

	if fileSize == 0 {
		n.NumBytes = 0
		n.NumSectors = 0
		return true, nil
	}

	n.NumBytes = fileSize
	n.NumSectors = divRoundUp(fileSize, disk.SectorSize())
	if bm.CountClear() < n.NumSectors {
		return false, nil
	}

	direct := n.NumSectors
	if direct > nd {
		direct = nd
	}
	for i := uint32(0); i < direct; i++ {
		s := uint32(bm.Find())
		n.DataSectors[i] = s
		if err := disk.WriteSector(s, make([]byte, disk.SectorSize())); err != nil {
			return false, err
		}
	}

	if n.NumSectors <= nd {
		return true, nil
	}

	rest := n.NumSectors - nd
	fanN := fanout(disk.SectorSize())
	n.UnrefSectors = uint32(bm.Find())
	lvl1 := newIndirectBlock(fanN)

	for i := uint32(0); i < fanN && rest > 0; i++ {
		lvl1[i] = uint32(bm.Find())
		lvl2 := newIndirectBlock(fanN)
		for j := uint32(0); j < fanN && rest > 0; j++ {
			lvl2[j] = uint32(bm.Find())
			if err := disk.WriteSector(lvl2[j], make([]byte, disk.SectorSize())); err != nil {
				return false, err
			}
			rest--
		}
		if err := writeIndirect(disk, lvl1[i], lvl2); err != nil {
			return false, err
		}
	}
	if err := writeIndirect(disk, n.UnrefSectors, lvl1); err != nil {
		return false, err
	}

	return rest == 0, nil
}

// Deallocate clears bm's bits for every data sector and indirect block
// this inode owns, tolerating SectorNone entries left by a partial
// allocation, then resets the inode's counters. The level-2 loop indexes
// by j, not i — the original's Deallocate has a documented bug indexing
// the inner loop by the outer variable, fixed here deliberately.
func (n *Inode) Deallocate(bm *bitmap.Bitmap, disk sectorIO) error {
	nd := numDirect(disk.SectorSize())
	direct := n.NumSectors
	if direct > nd {
		direct = nd
	}
	for i := uint32(0); i < direct; i++ {
		if n.DataSectors[i] != SectorNone {
			bm.Clear(n.DataSectors[i])
			n.DataSectors[i] = SectorNone
		}
	}

	if n.UnrefSectors != SectorNone {
		lvl1, err := readIndirect(disk, n.UnrefSectors)
		if err != nil {
			return err
		}
		for i, l1 := range lvl1 {
			if l1 == SectorNone {
				continue
			}
			lvl2, err := readIndirect(disk, l1)
			if err != nil {
				return err
			}
			for j, l2 := range lvl2 {
				if l2 != SectorNone {
					bm.Clear(l2)
					lvl2[j] = SectorNone
				}
			}
			bm.Clear(l1)
			lvl1[i] = SectorNone
		}
		bm.Clear(n.UnrefSectors)
		n.UnrefSectors = SectorNone
	}

	n.NumBytes = 0
	n.NumSectors = 0
	return nil
}

// ByteToSector translates a byte offset into the file to the disk sector
// holding it, following the two-level indirection scheme. It returns
// SectorNone for offsets at or past the inode's allocated length.
//
// The source compares "raw.numSectors < sector" (strict), which would
// read one sector past the allocated range before failing. This
// implementation rejects offsets whose sector index is >= NumSectors,
// closing that gap.
func (n *Inode) ByteToSector(disk sectorIO, offset uint32) (uint32, error) {
	sector := offset / disk.SectorSize()
	if sector >= n.NumSectors {
		return SectorNone, nil
	}

	nd := numDirect(disk.SectorSize())
	if sector < nd {
		return n.DataSectors[sector], nil
	}

	sector -= nd
	fanN := fanout(disk.SectorSize())
	lvl1, err := readIndirect(disk, n.UnrefSectors)
	if err != nil {
		return SectorNone, err
	}
	l1idx := sector / fanN
	if l1idx >= uint32(len(lvl1)) || lvl1[l1idx] == SectorNone {
		return SectorNone, nil
	}
	lvl2, err := readIndirect(disk, lvl1[l1idx])
	if err != nil {
		return SectorNone, err
	}
	return lvl2[sector%fanN], nil
}

// Extend grows the inode by extraBytes, allocating whatever new direct,
// indirect-1, and level-2 sectors are needed and zero-filling them. It
// returns false, without mutating bm's persisted snapshot, if there is
// not enough free space for the whole extension.
func (n *Inode) Extend(bm *bitmap.Bitmap, disk sectorIO, extraBytes uint32) (bool, error) {
	nd := numDirect(disk.SectorSize())
	fanN := fanout(disk.SectorSize())

	newSectors := divRoundUp(extraBytes, disk.SectorSize())
	currentSectors := n.NumSectors
	total := newSectors

	if currentSectors+newSectors > nd {
		if n.UnrefSectors == SectorNone {
			total++
		}
		total += divRoundUp(newSectors, fanN)
	}

	if bm.CountClear() < total {
		return false, nil
	}

	n.NumSectors += newSectors
	n.NumBytes += extraBytes

	for i := currentSectors; i < nd && newSectors > 0; i++ {
		s := uint32(bm.Find())
		n.DataSectors[i] = s
		if err := disk.WriteSector(s, make([]byte, disk.SectorSize())); err != nil {
			return false, err
		}
		newSectors--
	}
	if newSectors == 0 {
		return true, nil
	}

	if currentSectors > nd {
		currentSectors -= nd
	} else {
		currentSectors = 0
	}
	var lvl1 []uint32
	if n.UnrefSectors == SectorNone {
		n.UnrefSectors = uint32(bm.Find())
		lvl1 = newIndirectBlock(fanN)
	} else {
		var err error
		lvl1, err = readIndirect(disk, n.UnrefSectors)
		if err != nil {
			return false, err
		}
	}

	for i := currentSectors / fanN; i < fanN && newSectors > 0; i++ {
		var lvl2 []uint32
		if lvl1[i] == SectorNone {
			lvl1[i] = uint32(bm.Find())
			lvl2 = newIndirectBlock(fanN)
		} else {
			var err error
			lvl2, err = readIndirect(disk, lvl1[i])
			if err != nil {
				return false, err
			}
		}
		for j := uint32(0); j < fanN && newSectors > 0; j++ {
			if lvl2[j] == SectorNone {
				s := uint32(bm.Find())
				lvl2[j] = s
				if err := disk.WriteSector(s, make([]byte, disk.SectorSize())); err != nil {
					return false, err
				}
				newSectors--
			}
		}
		if err := writeIndirect(disk, lvl1[i], lvl2); err != nil {
			return false, err
		}
	}
	if err := writeIndirect(disk, n.UnrefSectors, lvl1); err != nil {
		return false, err
	}

	return newSectors == 0, nil
}
