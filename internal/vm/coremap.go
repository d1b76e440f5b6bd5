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
	"container/list"
	"strconv"

	"github.com/jacobsa/util/lrucache"
)

// PageContent is what a resident physical frame currently holds: which
// address space's page, and which virtual page number within it. The Go
// successor to the original kernel's CoreMap PageContent record.
type PageContent struct {
	Space *AddressSpace
	VPN   uint32
}

// Coremap tracks, for every resident physical frame, which address space
// and virtual page occupies it, and picks an eviction victim in least-
// recently-used order.
//
// Membership (ppn -> PageContent) is kept in a
// github.com/jacobsa/util/lrucache.Cache — the same LRU primitive
// internal/cache/sectorcache wraps for the disk block cache. Victim
// selection, however, cannot be delegated to that cache's own built-in
// capacity eviction: lrucache silently drops the least-recently-used
// entry on an over-capacity Insert with no eviction hook, and a coremap
// eviction must run a side effect first (save the victim's dirty page to
// swap) before the frame can be handed to anyone else. So Coremap keeps a
// parallel container/list recency order it fully controls, and only ever
// calls Insert when a frame genuinely becomes free — the cache's capacity
// is sized to equal the frame count, so its own auto-eviction path is
// never exercised.
//
// Callers serialize access via PagingSystem's single gate; Coremap holds
// no lock of its own.
type Coremap struct {
	cache   lrucache.Cache
	recency *list.List
	elems   map[uint32]*list.Element
}

// NewCoremap returns an empty coremap sized for numFrames resident pages.
func NewCoremap(numFrames uint32) *Coremap {
	capacity := int(numFrames)
	if capacity < 1 {
		capacity = 1
	}
	return &Coremap{
		cache:   lrucache.New(capacity),
		recency: list.New(),
		elems:   make(map[uint32]*list.Element),
	}
}

func ppnKey(ppn uint32) string { return strconv.FormatUint(uint64(ppn), 10) }

// Store records that ppn now holds space's page vpn, marking it most
// recently used.
func (c *Coremap) Store(ppn uint32, space *AddressSpace, vpn uint32) {
	c.cache.Insert(ppnKey(ppn), &PageContent{Space: space, VPN: vpn})
	if e, ok := c.elems[ppn]; ok {
		c.recency.Remove(e)
	}
	c.elems[ppn] = c.recency.PushFront(ppn)
}

// Access marks ppn as most recently used without changing its content.
func (c *Coremap) Access(ppn uint32) {
	c.cache.LookUp(ppnKey(ppn))
	if e, ok := c.elems[ppn]; ok {
		c.recency.MoveToFront(e)
	}
}

// Find returns what ppn currently holds, if anything.
func (c *Coremap) Find(ppn uint32) (PageContent, bool) {
	v := c.cache.LookUp(ppnKey(ppn))
	if v == nil {
		return PageContent{}, false
	}
	return *v.(*PageContent), true
}

// Remove drops ppn's entry entirely (the frame is being freed, not just
// evicted for reuse).
func (c *Coremap) Remove(ppn uint32) {
	c.cache.Erase(ppnKey(ppn))
	if e, ok := c.elems[ppn]; ok {
		c.recency.Remove(e)
		delete(c.elems, ppn)
	}
}

// Len returns the number of resident frames tracked.
func (c *Coremap) Len() int { return c.recency.Len() }

// Victim returns the least-recently-used resident frame without removing
// it; the caller is responsible for saving its content and then calling
// Remove.
func (c *Coremap) Victim() (ppn uint32, content PageContent, ok bool) {
	back := c.recency.Back()
	if back == nil {
		return 0, PageContent{}, false
	}
	ppn = back.Value.(uint32)
	content, ok = c.Find(ppn)
	return ppn, content, ok
}

// CleanSpace removes every frame currently owned by space (called when an
// address space is torn down) and returns the freed frame numbers.
func (c *Coremap) CleanSpace(space *AddressSpace) []uint32 {
	var removed []uint32
	for ppn, e := range c.elems {
		v := c.cache.LookUp(ppnKey(ppn))
		if v == nil {
			continue
		}
		if v.(*PageContent).Space == space {
			c.cache.Erase(ppnKey(ppn))
			c.recency.Remove(e)
			delete(c.elems, ppn)
			removed = append(removed, ppn)
		}
	}
	return removed
}
