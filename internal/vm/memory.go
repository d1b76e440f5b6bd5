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

package vm

import "sync"

// PhysicalMemory is the kernel's single shared byte array standing in
// for the original kernel's MMU.mainMemory, addressed in fixed-size
// frames rather than raw bytes.
type PhysicalMemory struct {
	mu       sync.Mutex
	pageSize uint32
	bytes    []byte
}

// NewPhysicalMemory allocates numFrames frames of pageSize bytes each.
func NewPhysicalMemory(numFrames, pageSize uint32) *PhysicalMemory {
	return &PhysicalMemory{pageSize: pageSize, bytes: make([]byte, uint64(numFrames)*uint64(pageSize))}
}

func (m *PhysicalMemory) frameRange(ppn uint32) (uint64, uint64) {
	start := uint64(ppn) * uint64(m.pageSize)
	return start, start + uint64(m.pageSize)
}

// ReadFrame copies frame ppn's contents into buf, which must be at least
// pageSize bytes.
func (m *PhysicalMemory) ReadFrame(ppn uint32, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, end := m.frameRange(ppn)
	copy(buf, m.bytes[start:end])
}

// WriteFrame overwrites frame ppn's contents with buf.
func (m *PhysicalMemory) WriteFrame(ppn uint32, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, end := m.frameRange(ppn)
	copy(m.bytes[start:end], buf)
}

// ZeroFrame clears frame ppn, matching the original kernel's practice of
// scrubbing a frame before reuse.
func (m *PhysicalMemory) ZeroFrame(ppn uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, end := m.frameRange(ppn)
	clear(m.bytes[start:end])
}
