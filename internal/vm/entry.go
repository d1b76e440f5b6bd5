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

// FrameUnassigned marks a page table entry that has never been backed by
// a physical frame.
const FrameUnassigned uint32 = 0xFFFFFFFF

// TranslationEntry is one virtual-to-physical binding, used both for a
// page table slot and for a software TLB slot — the same dual role the
// original kernel's TranslationEntry played between AddressSpace's page
// table and the machine's hardware TLB.
type TranslationEntry struct {
	VirtualPage  uint32
	PhysicalPage uint32
	Valid        bool
	Dirty        bool
	ReadOnly     bool

	// HasSwapCopy reports whether this page has already been written to
	// swap at least once; a clean page with a swap copy does not need
	// to be written again on the next eviction.
	HasSwapCopy bool
}
