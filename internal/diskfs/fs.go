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
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jacobsa/syncutil"
	"github.com/nachos-go/kernel/internal/bitmap"
	"github.com/nachos-go/kernel/internal/kernelerrors"
	"github.com/nachos-go/kernel/internal/logger"
)

// BitmapSector and RootSector are the two fixed, format-time inode
// locations spec §6 specifies: the bitmap file's inode lives at sector 0,
// the root directory file's inode at sector 1.
const (
	BitmapSector uint32 = 0
	RootSector   uint32 = 1

	// rootDirInitialEntries is the root (and every freshly made)
	// directory's initial entry count before Directory.Add starts
	// growing the table.
	rootDirInitialEntries = 4
)

// FileSystem is the façade tying path resolution, inode allocation, and
// directory maintenance together — the Go successor to the original
// kernel's FileSystem (file_system.cc).
type FileSystem struct {
	disk sectorIO
	ft   *FileTable

	// bitmapMu serializes the read-allocate-persist cycle for the free
	// sector bitmap across concurrent file system operations. The
	// bitmap itself is also stored as a Nachos file (its own inode at
	// BitmapSector); this lock protects both the in-memory bm and that
	// file's on-disk bytes, which are written only by
	// persistBitmapLocked with this lock held.
	bitmapMu sync.Mutex
	bm       *bitmap.Bitmap

	exitOnViolation bool
}

// Format initializes a fresh file system on disk: an empty bitmap file at
// BitmapSector and an empty root directory file at RootSector, with both
// inodes' own data sectors accounted for in the bitmap before it is first
// persisted.
func Format(disk sectorIO, exitOnViolation bool) (*FileSystem, error) {
	bm := bitmap.New(disk.NumSectors())
	bm.Mark(BitmapSector)
	bm.Mark(RootSector)

	bitmapInode := NewInode(KindFile, disk.SectorSize())
	bitmapBytes := uint32((bm.NumBits()+31)/32) * 4
	if ok, err := bitmapInode.Allocate(bm, disk, bitmapBytes); err != nil {
		return nil, err
	} else if !ok {
		return nil, kernelerrors.New(kernelerrors.NoSpace, "diskfs: format: not enough space for the free-sector bitmap")
	}
	if err := bitmapInode.WriteBack(disk, BitmapSector); err != nil {
		return nil, err
	}

	rootInode := NewInode(KindDir, disk.SectorSize())
	rootDir := NewDirectory(rootDirInitialEntries)
	if ok, err := rootInode.Allocate(bm, disk, rootDir.contentSize()); err != nil {
		return nil, err
	} else if !ok {
		return nil, kernelerrors.New(kernelerrors.NoSpace, "diskfs: format: not enough space for the root directory")
	}
	if err := rootInode.WriteBack(disk, RootSector); err != nil {
		return nil, err
	}

	fs := &FileSystem{disk: disk, ft: NewFileTable(), bm: bm, exitOnViolation: exitOnViolation}

	rootFile := &File{disk: disk, bm: bm, inode: rootInode, sector: RootSector}
	if err := rootDir.WriteBack(rootFile); err != nil {
		return nil, err
	}

	bitmapFile := &File{disk: disk, bm: bm, inode: bitmapInode, sector: BitmapSector}
	if err := bitmapFile.writeBitmap(bm); err != nil {
		return nil, err
	}

	return fs, nil
}

// Mount opens an already-formatted disk, loading its free-sector bitmap
// into memory.
func Mount(disk sectorIO, exitOnViolation bool) (*FileSystem, error) {
	bitmapFile, err := OpenFile(disk, nil, BitmapSector)
	if err != nil {
		return nil, fmt.Errorf("diskfs: mount: open bitmap file: %w", err)
	}
	bm := bitmap.New(disk.NumSectors())
	if err := bitmapFile.readBitmap(bm); err != nil {
		return nil, err
	}
	return &FileSystem{disk: disk, ft: NewFileTable(), bm: bm, exitOnViolation: exitOnViolation}, nil
}

func (f *File) writeBitmap(bm *bitmap.Bitmap) error {
	buf := make([]byte, (bm.NumBits()+31)/32*4)
	if err := bm.WriteBack(memDisk{buf}, 0); err != nil {
		return err
	}
	_, err := f.WriteAt(buf, 0)
	return err
}

func (f *File) readBitmap(bm *bitmap.Bitmap) error {
	buf := make([]byte, f.Length())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return err
	}
	return bm.FetchFrom(memDisk{buf}, 0)
}

// memDisk adapts an in-memory byte slice to the one-sector RawDisk shape
// bitmap.FetchFrom/WriteBack expect, so the bitmap's own (de)serialization
// code doesn't need a disk-shaped special case for "the whole thing fits
// in a []byte I already have".
type memDisk struct{ buf []byte }

func (m memDisk) SectorSize() uint32 { return uint32(len(m.buf)) }
func (m memDisk) NumSectors() uint32 { return 1 }
func (m memDisk) ReadSector(sector uint32, data []byte) error {
	copy(data, m.buf)
	return nil
}
func (m memDisk) WriteSector(sector uint32, data []byte) error {
	copy(m.buf, data)
	return nil
}

// persistBitmapLocked flushes the in-memory bitmap to its on-disk file. Callers
// must hold bitmapMu.
func (f *FileSystem) persistBitmapLocked() error {
	bmFile, err := OpenFile(f.disk, f.bm, BitmapSector)
	if err != nil {
		return err
	}
	return bmFile.writeBitmap(f.bm)
}

// resolveParent walks path's directory components (all but the last),
// returning the parent Directory (already fetched) and the sector of its
// inode, plus the final component's name.
func (f *FileSystem) resolveParent(path string) (*Directory, uint32, string, error) {
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return nil, 0, "", kernelerrors.New(kernelerrors.BadPath, "diskfs: empty path")
	}

	dirSector := RootSector
	for _, comp := range parts[:len(parts)-1] {
		dir, err := f.fetchDirectory(dirSector)
		if err != nil {
			return nil, 0, "", err
		}
		next := dir.Find(comp, true)
		if next == SectorNone {
			return nil, 0, "", kernelerrors.New(kernelerrors.NotFound, "diskfs: no such directory %q", comp)
		}
		dirSector = next
	}

	dir, err := f.fetchDirectory(dirSector)
	if err != nil {
		return nil, 0, "", err
	}
	return dir, dirSector, parts[len(parts)-1], nil
}

func (f *FileSystem) fetchDirectory(sector uint32) (*Directory, error) {
	file, err := OpenFile(f.disk, f.bm, sector)
	if err != nil {
		return nil, err
	}
	dir := NewDirectory(1)
	if err := dir.FetchFrom(file); err != nil {
		return nil, err
	}
	return dir, nil
}

func (f *FileSystem) writeDirectory(dir *Directory, sector uint32) error {
	file, err := OpenFile(f.disk, f.bm, sector)
	if err != nil {
		return err
	}
	return dir.WriteBack(file)
}

// Create makes a new zero-length file at path. It returns AlreadyExists
// if the name is taken, and NoSpace if the bitmap can't satisfy the new
// inode.
func (f *FileSystem) Create(path string) error {
	return f.create(path, 0, KindFile)
}

// Mkdir makes a new, empty directory at path.
func (f *FileSystem) Mkdir(path string) error {
	return f.create(path, uint32(NewDirectory(rootDirInitialEntries).contentSize()), KindDir)
}

func (f *FileSystem) create(path string, initialSize uint32, kind Kind) error {
	f.bitmapMu.Lock()
	defer f.bitmapMu.Unlock()

	parent, parentSector, name, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	node := f.ft.FindOrAdd(parentSector)
	node.LockDir()
	defer node.UnlockDir()

	// Re-fetch under the lock in case a concurrent op on the same
	// directory committed since resolveParent's read.
	parent, err = f.fetchDirectory(parentSector)
	if err != nil {
		return err
	}
	if _, exists := parent.FindAny(name); exists {
		return kernelerrors.New(kernelerrors.AlreadyExists, "diskfs: %q already exists", name)
	}

	sector := uint32(f.bm.Find())
	if int32(sector) < 0 {
		return kernelerrors.New(kernelerrors.NoSpace, "diskfs: no free inode sector for %q", name)
	}

	inode := NewInode(kind, f.disk.SectorSize())
	ok, err := inode.Allocate(f.bm, f.disk, initialSize)
	if err != nil {
		f.bm.Clear(sector)
		return err
	}
	if !ok {
		f.bm.Clear(sector)
		return kernelerrors.New(kernelerrors.NoSpace, "diskfs: not enough space to create %q", name)
	}
	if err := inode.WriteBack(f.disk, sector); err != nil {
		return err
	}

	if kind == KindDir {
		dirFile := &File{disk: f.disk, bm: f.bm, inode: inode, sector: sector}
		if err := NewDirectory(rootDirInitialEntries).WriteBack(dirFile); err != nil {
			return err
		}
	}

	if !parent.Add(name, sector, kind == KindDir) {
		return kernelerrors.New(kernelerrors.AlreadyExists, "diskfs: %q already exists", name)
	}
	if err := f.writeDirectory(parent, parentSector); err != nil {
		return err
	}

	return f.persistBitmapLocked()
}

// Handle is an open reference to a file's inode, returned by Open.
type Handle struct {
	fs     *FileSystem
	file   *File
	node   *FileNode
	sector uint32
}

// Open resolves path and returns a Handle bound to its inode, failing if
// the inode is marked for deferred delete.
func (f *FileSystem) Open(path string) (*Handle, error) {
	parent, _, name, err := f.resolveParent(path)
	if err != nil {
		return nil, err
	}
	entry, ok := parent.FindAny(name)
	if !ok {
		return nil, kernelerrors.New(kernelerrors.NotFound, "diskfs: %q not found", path)
	}

	node := f.ft.FindOrAdd(entry.Sector)
	if node.IsMarkedForDelete() {
		return nil, kernelerrors.New(kernelerrors.NotFound, "diskfs: %q is marked for delete", path)
	}

	file, err := OpenFile(f.disk, f.bm, entry.Sector)
	if err != nil {
		return nil, err
	}
	node.Incref()
	return &Handle{fs: f, file: file, node: node, sector: entry.Sector}, nil
}

// Read reads up to len(buf) bytes at offset.
func (h *Handle) Read(buf []byte, offset uint32) (int, error) {
	h.node.LockFile()
	defer h.node.UnlockFile()
	if err := h.file.inode.FetchFrom(h.file.disk, h.file.sector); err != nil {
		return 0, err
	}
	return h.file.ReadAt(buf, offset)
}

// Write writes buf at offset, extending the file if needed. Extension is
// atomic against other handles open on the same inode: the bitmap lock
// and the file's own lock are both held while the inode is re-fetched
// from disk, extended, and written back, so two handles racing to
// extend the same file never compute their new sector counts against a
// stale in-memory copy of each other's allocations.
func (h *Handle) Write(buf []byte, offset uint32) (int, error) {
	h.fs.bitmapMu.Lock()
	defer h.fs.bitmapMu.Unlock()
	h.node.LockFile()
	defer h.node.UnlockFile()

	if err := h.file.inode.FetchFrom(h.file.disk, h.file.sector); err != nil {
		return 0, err
	}
	n, err := h.file.WriteAt(buf, offset)
	if err != nil {
		return n, err
	}
	return n, h.fs.persistBitmapLocked()
}

// Length returns the file's current size.
func (h *Handle) Length() uint32 { return h.file.Length() }

// Dup returns a second, independently closable Handle bound to the same
// underlying file, incrementing its open-reference count. Used by
// internal/syscall's Fork, whose child must be free to close its copy of
// an inherited handle without invalidating the parent's.
func (h *Handle) Dup() *Handle {
	h.node.Incref()
	return &Handle{fs: h.fs, file: h.file, node: h.node, sector: h.sector}
}

// Close releases the handle, deallocating the inode immediately if it
// was marked for delete and this was the last open reference.
func (h *Handle) Close() error {
	if h.node.Decref() {
		return h.fs.deallocate(h.sector)
	}
	return nil
}

func (f *FileSystem) deallocate(sector uint32) error {
	f.bitmapMu.Lock()
	defer f.bitmapMu.Unlock()

	node := f.ft.FindOrAdd(sector)
	node.LockFile()
	defer node.UnlockFile()

	inode := NewInode(KindFile, f.disk.SectorSize())
	if err := inode.FetchFrom(f.disk, sector); err != nil {
		return err
	}
	if err := inode.Deallocate(f.bm, f.disk); err != nil {
		return err
	}
	// The source asserts freeMap->Test(sector) before every Clear
	// (file_header.cc's Deallocate, guarding its own data sectors the
	// same way); a clear bit here means something already freed this
	// header sector once, which should never happen through the normal
	// open-count/mark-for-delete path.
	if !f.bm.Test(sector) {
		kernelerrors.Fatal(f.exitOnViolation, "diskfs: double free of sector %d", sector)
	}
	f.bm.Clear(sector)
	f.ft.Remove(sector)
	return f.persistBitmapLocked()
}

// Remove deletes path. If the inode is still open elsewhere, the removal
// is deferred: the directory entry is cleared immediately but the inode
// and its data sectors are freed only when the last Handle closes (spec
// §4.5).
func (f *FileSystem) Remove(path string) error {
	f.bitmapMu.Lock()

	parent, parentSector, name, err := f.resolveParent(path)
	if err != nil {
		f.bitmapMu.Unlock()
		return err
	}
	entry, ok := parent.FindAny(name)
	if !ok {
		f.bitmapMu.Unlock()
		return kernelerrors.New(kernelerrors.NotFound, "diskfs: %q not found", path)
	}

	parent.Remove(name)
	if err := f.writeDirectory(parent, parentSector); err != nil {
		f.bitmapMu.Unlock()
		return err
	}
	f.bitmapMu.Unlock()

	node := f.ft.FindOrAdd(entry.Sector)
	if node.MarkForDelete() {
		return f.deallocate(entry.Sector)
	}
	logger.Debugf("diskfs: remove %q deferred: inode at sector %d still open", path, entry.Sector)
	return nil
}

// Rmdir removes the (possibly non-empty) directory at path, recursively
// deallocating its contents (spec §4.4's clean), and rejects the root.
func (f *FileSystem) Rmdir(path string) error {
	if path == "/" {
		return kernelerrors.New(kernelerrors.BadPath, "diskfs: cannot remove the root directory")
	}

	parent, parentSector, name, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	entry, ok := parent.FindAny(name)
	if !ok {
		return kernelerrors.New(kernelerrors.NotFound, "diskfs: %q not found", path)
	}
	if !entry.IsDir {
		return kernelerrors.New(kernelerrors.BadPath, "diskfs: %q is not a directory", path)
	}

	if err := f.clean(entry.Sector); err != nil {
		return err
	}

	f.bitmapMu.Lock()
	parent.Remove(name)
	err = f.writeDirectory(parent, parentSector)
	f.bitmapMu.Unlock()
	if err != nil {
		return err
	}

	node := f.ft.FindOrAdd(entry.Sector)
	if node.MarkForDelete() {
		return f.deallocate(entry.Sector)
	}
	return nil
}

// clean recursively deallocates a directory's contents: files still open
// are merely marked for delete; sub-directories recurse before their own
// inode is freed (spec §4.4).
func (f *FileSystem) clean(dirSector uint32) error {
	dir, err := f.fetchDirectory(dirSector)
	if err != nil {
		return err
	}
	for _, e := range dir.Entries() {
		if !e.InUse {
			continue
		}
		if e.IsDir {
			if err := f.clean(e.Sector); err != nil {
				return err
			}
			if err := f.deallocate(e.Sector); err != nil {
				return err
			}
			continue
		}
		node := f.ft.FindOrAdd(e.Sector)
		if node.MarkForDelete() {
			if err := f.deallocate(e.Sector); err != nil {
				return err
			}
		}
	}
	return nil
}

// FileInfo is the result of resolving a path without opening it, enough
// for the original kernel's shell "ls"-style listing and for fsck
// reporting: which sector backs the entry, whether it is a directory,
// and (for plain files) its current length.
type FileInfo struct {
	IsDir  bool
	Length uint32
	Sector uint32
}

// Stat resolves path and reports its sector, kind, and (for files) length,
// without taking a Handle on it.
func (f *FileSystem) Stat(path string) (FileInfo, error) {
	if path == "/" {
		return FileInfo{IsDir: true, Sector: RootSector}, nil
	}
	parent, _, name, err := f.resolveParent(path)
	if err != nil {
		return FileInfo{}, err
	}
	entry, ok := parent.FindAny(name)
	if !ok {
		return FileInfo{}, kernelerrors.New(kernelerrors.NotFound, "diskfs: %q not found", path)
	}
	info := FileInfo{IsDir: entry.IsDir, Sector: entry.Sector}
	if !entry.IsDir {
		file, err := OpenFile(f.disk, f.bm, entry.Sector)
		if err != nil {
			return FileInfo{}, err
		}
		info.Length = file.Length()
	}
	return info, nil
}

// Walk concurrently checks the whole directory tree for internal
// consistency: every subdirectory must resolve to a readable Directory
// record and every entry in it must Stat successfully. visit is called
// once per entry found, with its full path and FileInfo; it may be
// called from multiple goroutines at once and must be safe for that.
//
// One goroutine is fanned out per subdirectory via a
// github.com/jacobsa/syncutil.Bundle, the same fan-out-and-join pattern
// a concurrent stat-files benchmark would use; Walk returns the first
// error any of them encountered.
func (f *FileSystem) Walk(visit func(path string, info FileInfo) error) error {
	b := syncutil.NewBundle(context.Background())

	var walkDir func(ctx context.Context, dirPath string, sector uint32) error
	walkDir = func(ctx context.Context, dirPath string, sector uint32) error {
		dir, err := f.fetchDirectory(sector)
		if err != nil {
			return fmt.Errorf("diskfs: walk %q: %w", dirPath, err)
		}
		for _, e := range dir.Entries() {
			if !e.InUse {
				continue
			}
			childPath := dirPath + "/" + e.Name
			info, err := f.Stat(childPath)
			if err != nil {
				return err
			}
			if err := visit(childPath, info); err != nil {
				return err
			}
			if e.IsDir {
				sector := e.Sector
				b.Add(func(ctx context.Context) error {
					return walkDir(ctx, childPath, sector)
				})
			}
		}
		return nil
	}

	b.Add(func(ctx context.Context) error {
		return walkDir(ctx, "", RootSector)
	})
	return b.Join()
}

// CheckReport is the result of FileSystem.Check, the Go successor to the
// original kernel's FileSystem::Check: every inconsistency it can find is
// collected rather than returning on the first one, mirroring
// file_system.cc's Check logging every CheckForError failure before
// returning a single pass/fail bool.
type CheckReport struct {
	NumDirs  int
	NumFiles int

	// BitmapMismatches lists sectors where the on-disk bitmap and the
	// shadow bitmap built by walking every reachable inode disagree,
	// the Go form of CheckBitmaps.
	BitmapMismatches []uint32
	// DuplicateSectors lists sectors claimed by more than one inode or
	// indirect block while building the shadow bitmap (CheckSector's
	// AddToShadowBitmap check).
	DuplicateSectors []uint32
	// BadHeaders lists paths whose inode's sector count doesn't match
	// the sector count its byte count implies (CheckFileHeader).
	BadHeaders []string
	// DuplicateNames lists "parent-path/name" pairs appearing more than
	// once in the same directory (CheckDirectory's knownNames scan).
	DuplicateNames []string
}

// OK reports whether Check found no inconsistency.
func (r *CheckReport) OK() bool {
	return len(r.BitmapMismatches) == 0 && len(r.DuplicateSectors) == 0 &&
		len(r.BadHeaders) == 0 && len(r.DuplicateNames) == 0
}

// Check walks every inode reachable from the root, the Go successor to
// the original kernel's FileSystem::Check: it builds a shadow bitmap by
// marking every sector an inode (or its indirect blocks) actually
// occupies, flags any sector claimed twice along the way, flags any
// inode whose sector count disagrees with its byte count, flags
// directories with a repeated entry name, and finally compares the
// shadow bitmap against the live one bit for bit. As with Walk,
// subdirectories are fanned out onto goroutines via a
// github.com/jacobsa/syncutil.Bundle; a shared mutex guards the shadow
// bitmap and report fields that every goroutine touches.
func (f *FileSystem) Check() (*CheckReport, error) {
	shadow := bitmap.New(f.bm.NumBits())
	report := &CheckReport{}
	var mu sync.Mutex

	mark := func(sector uint32) {
		mu.Lock()
		defer mu.Unlock()
		if sector >= shadow.NumBits() || shadow.Test(sector) {
			report.DuplicateSectors = append(report.DuplicateSectors, sector)
			return
		}
		shadow.Mark(sector)
	}

	checkInode := func(path string, sector uint32) error {
		inode := NewInode(KindFile, f.disk.SectorSize())
		if err := inode.FetchFrom(f.disk, sector); err != nil {
			return fmt.Errorf("diskfs: check %q: %w", path, err)
		}
		if inode.NumSectors != divRoundUp(inode.NumBytes, f.disk.SectorSize()) {
			mu.Lock()
			report.BadHeaders = append(report.BadHeaders, path)
			mu.Unlock()
		}
		occupied, err := inode.OccupiedSectors(f.disk)
		if err != nil {
			return fmt.Errorf("diskfs: check %q: %w", path, err)
		}
		mark(sector)
		for _, s := range occupied {
			mark(s)
		}
		return nil
	}

	if err := checkInode("/.bitmap", BitmapSector); err != nil {
		return nil, err
	}
	if err := checkInode("/", RootSector); err != nil {
		return nil, err
	}

	b := syncutil.NewBundle(context.Background())
	var walkDir func(ctx context.Context, dirPath string, sector uint32) error
	walkDir = func(ctx context.Context, dirPath string, sector uint32) error {
		dir, err := f.fetchDirectory(sector)
		if err != nil {
			return fmt.Errorf("diskfs: check %q: %w", dirPath, err)
		}

		seen := make(map[string]bool)
		for _, e := range dir.Entries() {
			if !e.InUse {
				continue
			}
			childPath := dirPath + "/" + e.Name
			if seen[e.Name] {
				mu.Lock()
				report.DuplicateNames = append(report.DuplicateNames, childPath)
				mu.Unlock()
			}
			seen[e.Name] = true

			if err := checkInode(childPath, e.Sector); err != nil {
				return err
			}
			mu.Lock()
			if e.IsDir {
				report.NumDirs++
			} else {
				report.NumFiles++
			}
			mu.Unlock()

			if e.IsDir {
				sector := e.Sector
				b.Add(func(ctx context.Context) error {
					return walkDir(ctx, childPath, sector)
				})
			}
		}
		return nil
	}
	b.Add(func(ctx context.Context) error {
		return walkDir(ctx, "", RootSector)
	})
	if err := b.Join(); err != nil {
		return nil, err
	}

	for sector := uint32(0); sector < f.bm.NumBits(); sector++ {
		if f.bm.Test(sector) != shadow.Test(sector) {
			report.BitmapMismatches = append(report.BitmapMismatches, sector)
		}
	}
	return report, nil
}
