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

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/kernelerrors"
)

const defaultSwapDir = "/swap"

// Swap is a per-address-space backing store for evicted pages. It is
// itself a Nachos file, living in the same on-disk file system every
// other file does — the Go successor to the original kernel's
// swap_id/swap OpenFile pair.
//
// The original kernel names swap files sequentially (swap.<counter mod
// 4096>), which is fine for a single address space at a time but would
// collide across concurrently created address spaces in this goroutine-
// parallel rewrite. Each swap file is instead suffixed with a
// github.com/google/uuid v4, so creation never races against another
// address space's swap file name.
type Swap struct {
	fs   *diskfs.FileSystem
	path string
	h    *diskfs.Handle
}

func newSwap(fs *diskfs.FileSystem, swapDir string, pageSize, numPages uint32) (*Swap, error) {
	if swapDir == "" {
		swapDir = defaultSwapDir
	}
	if err := fs.Mkdir(swapDir); err != nil && !kernelerrors.Is(err, kernelerrors.AlreadyExists) {
		return nil, fmt.Errorf("vm: swap: prepare %q: %w", swapDir, err)
	}

	path := fmt.Sprintf("%s/swap-%s", swapDir, uuid.NewString())
	if err := fs.Create(path); err != nil {
		return nil, fmt.Errorf("vm: swap: create %q: %w", path, err)
	}
	h, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vm: swap: open %q: %w", path, err)
	}
	// Pre-extend so every page's slot exists before it is ever written,
	// matching the original's Create(swap_id, numPages * PAGE_SIZE).
	if numPages > 0 {
		if _, err := h.Write(make([]byte, pageSize), (numPages-1)*pageSize); err != nil {
			return nil, fmt.Errorf("vm: swap: preallocate %q: %w", path, err)
		}
	}
	return &Swap{fs: fs, path: path, h: h}, nil
}

// WritePage writes one page's worth of data to vpn's slot in the swap
// file.
func (s *Swap) WritePage(vpn, pageSize uint32, data []byte) error {
	if _, err := s.h.Write(data, vpn*pageSize); err != nil {
		return fmt.Errorf("vm: swap: write page %d: %w", vpn, err)
	}
	return nil
}

// ReadPage reads vpn's slot from the swap file into data.
func (s *Swap) ReadPage(vpn, pageSize uint32, data []byte) error {
	if _, err := s.h.Read(data, vpn*pageSize); err != nil {
		return fmt.Errorf("vm: swap: read page %d: %w", vpn, err)
	}
	return nil
}

// Close releases the swap file's handle and removes it from the file
// system — an address space's swap is never shared and never outlives
// it.
func (s *Swap) Close() error {
	if err := s.h.Close(); err != nil {
		return err
	}
	return s.fs.Remove(s.path)
}
