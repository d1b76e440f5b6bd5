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

// Package diskio provides the lowest layer of the storage stack: a
// fixed-geometry raw disk backed by a host file, and a synchronous wrapper
// that serializes access to it the way the original kernel's SynchDisk
// serialized requests to an interrupt-driven device (one disk operation in
// flight at a time).
package diskio

import (
	"fmt"
	"io"
)

// RawDisk is the contract a disk emulator exposes: addressable,
// fixed-size sectors with no concurrency guarantees of its own. Callers
// that need to share a RawDisk across goroutines should go through
// SyncDisk.
type RawDisk interface {
	// SectorSize returns the fixed size, in bytes, of one sector.
	SectorSize() uint32

	// NumSectors returns the number of addressable sectors.
	NumSectors() uint32

	// ReadSector reads sector into data, which must be at least
	// SectorSize() bytes.
	ReadSector(sector uint32, data []byte) error

	// WriteSector writes data (which must be at least SectorSize() bytes)
	// into sector.
	WriteSector(sector uint32, data []byte) error
}

// FileDisk is a RawDisk backed by a host file, pre-extended to
// numSectors*sectorSize bytes at Open/Format time. It has no locking of its
// own; SyncDisk supplies that.
type FileDisk struct {
	f          io.ReaderAt
	w          io.WriterAt
	sectorSize uint32
	numSectors uint32
}

// NewFileDisk wraps an already-sized file as a RawDisk with the given
// geometry. The caller is responsible for the file's lifetime.
func NewFileDisk(f interface {
	io.ReaderAt
	io.WriterAt
}, sectorSize, numSectors uint32) *FileDisk {
	return &FileDisk{f: f, w: f, sectorSize: sectorSize, numSectors: numSectors}
}

func (d *FileDisk) SectorSize() uint32 { return d.sectorSize }
func (d *FileDisk) NumSectors() uint32 { return d.numSectors }

func (d *FileDisk) checkSector(sector uint32) error {
	if sector >= d.numSectors {
		return fmt.Errorf("diskio: sector %d out of range [0, %d)", sector, d.numSectors)
	}
	return nil
}

func (d *FileDisk) ReadSector(sector uint32, data []byte) error {
	if err := d.checkSector(sector); err != nil {
		return err
	}
	if uint32(len(data)) < d.sectorSize {
		return fmt.Errorf("diskio: buffer too small: have %d, need %d", len(data), d.sectorSize)
	}
	off := int64(sector) * int64(d.sectorSize)
	_, err := d.f.ReadAt(data[:d.sectorSize], off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("diskio: read sector %d: %w", sector, err)
	}
	return nil
}

func (d *FileDisk) WriteSector(sector uint32, data []byte) error {
	if err := d.checkSector(sector); err != nil {
		return err
	}
	if uint32(len(data)) < d.sectorSize {
		return fmt.Errorf("diskio: buffer too small: have %d, need %d", len(data), d.sectorSize)
	}
	off := int64(sector) * int64(d.sectorSize)
	if _, err := d.w.WriteAt(data[:d.sectorSize], off); err != nil {
		return fmt.Errorf("diskio: write sector %d: %w", sector, err)
	}
	return nil
}
