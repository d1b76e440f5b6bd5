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

package diskio

import (
	"sync"

	"github.com/nachos-go/kernel/internal/logger"
)

// SyncDisk serializes access to a RawDisk behind a single mutex, the same
// role the original kernel's SynchDisk played on top of an asynchronous,
// interrupt-driven device: only one disk operation is in flight at a time,
// and callers block until their own request completes.
type SyncDisk struct {
	mu   sync.Mutex
	disk RawDisk
}

// NewSyncDisk wraps disk so that ReadSector/WriteSector calls from multiple
// goroutines are serialized.
func NewSyncDisk(disk RawDisk) *SyncDisk {
	return &SyncDisk{disk: disk}
}

func (s *SyncDisk) SectorSize() uint32 { return s.disk.SectorSize() }
func (s *SyncDisk) NumSectors() uint32 { return s.disk.NumSectors() }

// ReadSector reads sector into data, blocking until the read completes.
func (s *SyncDisk) ReadSector(sector uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Tracef("diskio: read sector %d", sector)
	return s.disk.ReadSector(sector, data)
}

// WriteSector writes data into sector, blocking until the write completes.
func (s *SyncDisk) WriteSector(sector uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Tracef("diskio: write sector %d", sector)
	return s.disk.WriteSector(sector, data)
}

// ClearSector zeroes out sector.
func (s *SyncDisk) ClearSector(sector uint32) error {
	zero := make([]byte, s.SectorSize())
	return s.WriteSector(sector, zero)
}

var _ RawDisk = (*SyncDisk)(nil)
