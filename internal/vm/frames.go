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

import "github.com/nachos-go/kernel/internal/bitmap"

// FrameAllocator tracks which physical frames are in use, reusing the
// same bitmap structure the file system uses for free disk sectors — the
// original kernel's global `bitmap` object played exactly this role for
// physical memory, separately from the file system's own free-sector
// bitmap.
//
// Callers serialize access to FrameAllocator themselves (via
// PagingSystem's single gate); it holds no lock of its own.
type FrameAllocator struct {
	bm *bitmap.Bitmap
}

// NewFrameAllocator returns an allocator tracking numFrames physical
// frames, all initially free.
func NewFrameAllocator(numFrames uint32) *FrameAllocator {
	return &FrameAllocator{bm: bitmap.New(numFrames)}
}

// Alloc reserves and returns a free frame number, or false if none remain.
func (f *FrameAllocator) Alloc() (uint32, bool) {
	n := f.bm.Find()
	if n < 0 {
		return 0, false
	}
	return uint32(n), true
}

// Free releases ppn back to the pool.
func (f *FrameAllocator) Free(ppn uint32) {
	f.bm.Clear(ppn)
}

// NumFrames returns the total frame count.
func (f *FrameAllocator) NumFrames() uint32 { return f.bm.NumBits() }

// NumFree returns how many frames are currently unallocated.
func (f *FrameAllocator) NumFree() uint32 { return f.bm.CountClear() }
