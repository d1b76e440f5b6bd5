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

// Package bitmap implements the free-sector bitmap used by the file system
// to track which disk sectors are allocated, the same role the original
// kernel's Bitmap class played for FileHeader.Allocate/Deallocate.
package bitmap

import (
	"encoding/binary"
	"fmt"

	"github.com/nachos-go/kernel/internal/diskio"
)

// Bitmap tracks the allocation state of numBits bits, one per disk sector.
// It is not safe for concurrent use; callers that share a Bitmap across
// goroutines must hold their own lock (the file system holds it under the
// same lock that guards free-space allocation).
type Bitmap struct {
	words   []uint32
	numBits uint32
}

// New returns a Bitmap with numBits bits, all initially clear (free).
func New(numBits uint32) *Bitmap {
	return &Bitmap{
		words:   make([]uint32, (numBits+31)/32),
		numBits: numBits,
	}
}

func (b *Bitmap) checkBit(n uint32) {
	if n >= b.numBits {
		panic(fmt.Sprintf("bitmap: bit %d out of range [0, %d)", n, b.numBits))
	}
}

// Mark sets bit n, indicating sector n is in use.
func (b *Bitmap) Mark(n uint32) {
	b.checkBit(n)
	b.words[n/32] |= 1 << (n % 32)
}

// Clear clears bit n, indicating sector n is free.
func (b *Bitmap) Clear(n uint32) {
	b.checkBit(n)
	b.words[n/32] &^= 1 << (n % 32)
}

// Test reports whether bit n is set.
func (b *Bitmap) Test(n uint32) bool {
	b.checkBit(n)
	return b.words[n/32]&(1<<(n%32)) != 0
}

// Find locates a clear bit, sets it, and returns its index, or -1 if every
// bit is set.
func (b *Bitmap) Find() int {
	for i, w := range b.words {
		if w == ^uint32(0) {
			continue
		}
		for bit := uint32(0); bit < 32; bit++ {
			n := uint32(i)*32 + bit
			if n >= b.numBits {
				break
			}
			if w&(1<<bit) == 0 {
				b.Mark(n)
				return int(n)
			}
		}
	}
	return -1
}

// CountClear returns the number of clear (free) bits.
func (b *Bitmap) CountClear() uint32 {
	var clear uint32
	for i, w := range b.words {
		base := uint32(i) * 32
		for bit := uint32(0); bit < 32 && base+bit < b.numBits; bit++ {
			if w&(1<<bit) == 0 {
				clear++
			}
		}
	}
	return clear
}

// NumBits returns the bitmap's fixed size.
func (b *Bitmap) NumBits() uint32 { return b.numBits }

// bytesNeeded is how many bytes the bitmap's on-disk encoding occupies.
func bytesNeeded(numBits uint32) int {
	return int((numBits + 31) / 32 * 4)
}

// SectorsNeeded returns how many disk sectors the bitmap's on-disk
// encoding occupies, given sectorSize.
func SectorsNeeded(numBits, sectorSize uint32) uint32 {
	nbytes := uint32(bytesNeeded(numBits))
	return (nbytes + sectorSize - 1) / sectorSize
}

// FetchFrom reads the bitmap back from consecutive sectors on disk,
// starting at startSector, mirroring FileHeader.FetchFrom's pattern of
// reading a fixed on-disk layout into an in-memory struct.
func (b *Bitmap) FetchFrom(disk diskio.RawDisk, startSector uint32) error {
	sectorSize := disk.SectorSize()
	nsectors := SectorsNeeded(b.numBits, sectorSize)
	buf := make([]byte, nsectors*sectorSize)
	for i := uint32(0); i < nsectors; i++ {
		if err := disk.ReadSector(startSector+i, buf[i*sectorSize:(i+1)*sectorSize]); err != nil {
			return fmt.Errorf("bitmap: fetch: %w", err)
		}
	}
	for i := range b.words {
		if (i+1)*4 > len(buf) {
			break
		}
		b.words[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return nil
}

// WriteBack writes the bitmap to consecutive sectors on disk, starting at
// startSector.
func (b *Bitmap) WriteBack(disk diskio.RawDisk, startSector uint32) error {
	sectorSize := disk.SectorSize()
	nsectors := SectorsNeeded(b.numBits, sectorSize)
	buf := make([]byte, nsectors*sectorSize)
	for i, w := range b.words {
		if (i+1)*4 > len(buf) {
			break
		}
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], w)
	}
	for i := uint32(0); i < nsectors; i++ {
		if err := disk.WriteSector(startSector+i, buf[i*sectorSize:(i+1)*sectorSize]); err != nil {
			return fmt.Errorf("bitmap: write back: %w", err)
		}
	}
	return nil
}
