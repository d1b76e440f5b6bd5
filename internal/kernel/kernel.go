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

// Package kernel wires every subsystem singleton together: the disk, the
// file system built on it, the thread scheduler, the paging system, the
// syscall dispatcher, and the console. It is the Go-domain successor to
// main.cc's startup sequence (Initialize, then hand off to the requested
// mode), stripped of the original's command-line-flag-driven test harness
// (-x/-cp/-tt/...), which cmd/nachos reimplements with cobra subcommands
// instead.
package kernel

import (
	"fmt"
	"os"

	"github.com/nachos-go/kernel/internal/cache/sectorcache"
	"github.com/nachos-go/kernel/internal/diskfs"
	"github.com/nachos-go/kernel/internal/diskio"
	"github.com/nachos-go/kernel/internal/logger"
	syscallpkg "github.com/nachos-go/kernel/internal/syscall"
	"github.com/nachos-go/kernel/internal/threads"
	"github.com/nachos-go/kernel/internal/vm"
)

// Config collects the geometry and paths a Kernel needs at startup. Zero
// values are replaced by the Default* constants below, matching the
// original's baked-in SectorSize/NumSectors/NumPhysPages constants in
// system.hh/machine.hh — made configurable here rather than compiled in,
// since nothing about the Go rewrite requires a fixed disk image size.
type Config struct {
	// DiskPath is the backing file for the simulated disk. It is created
	// and pre-extended if it does not already exist.
	DiskPath string

	// SwapDir holds per-address-space swap files (vm.AddressSpace's
	// save_page/swap_find equivalent). Created if missing.
	SwapDir string

	SectorSize uint32
	NumSectors uint32
	PageSize   uint32
	NumFrames  uint32

	// Format, when true, reinitializes the disk's file system (equivalent
	// to the original's -f flag) instead of mounting what is already
	// there.
	Format bool

	// ExitOnInvariantViolation controls what an internal-consistency
	// violation does (kernelerrors.Fatal): true terminates the process,
	// false panics. Defaults true for a running process, matching the
	// original kernel's own ASSERT aborting the whole simulator rather
	// than trying to recover.
	ExitOnInvariantViolation bool
}

// Default geometry, chosen to comfortably hold a handful of small NOFF
// executables and their data during a shell session; nothing here is
// load-bearing for kernel correctness, unlike the original's disk-geometry
// constants, which the file system's layout math depended on directly.
const (
	DefaultSectorSize = 128
	DefaultNumSectors = 4096
	DefaultPageSize   = 128
	DefaultNumFrames  = 32
)

func (c *Config) setDefaults() {
	if c.SectorSize == 0 {
		c.SectorSize = DefaultSectorSize
	}
	if c.NumSectors == 0 {
		c.NumSectors = DefaultNumSectors
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.NumFrames == 0 {
		c.NumFrames = DefaultNumFrames
	}
}

// Kernel owns every subsystem singleton for one running instance, the
// Go-domain successor to the globals main.cc's Initialize populates
// (fileSystem, scheduler, machine's MMU/coremap). Unlike the original,
// nothing here is a package-level global: a Kernel can be constructed,
// used, and torn down independently per test or per CLI invocation.
type Kernel struct {
	cfg Config

	diskFile *os.File
	cache    *sectorcache.Cache
	disk     *diskio.SyncDisk
	fs       *diskfs.FileSystem
	sched    *threads.Scheduler
	paging   *vm.PagingSystem
	console  syscallpkg.IOConsole

	Dispatcher *syscallpkg.Dispatcher
}

// New opens (or formats) the disk at cfg.DiskPath and wires every
// subsystem on top of it. The console is wired to the process's own
// stdin/stdout, matching the original's default (non-UNIX-socket)
// SynchConsole wiring in system.cc.
func New(cfg Config) (*Kernel, error) {
	cfg.setDefaults()

	if cfg.SwapDir == "" {
		return nil, fmt.Errorf("kernel: SwapDir is required")
	}
	if err := os.MkdirAll(cfg.SwapDir, 0o755); err != nil {
		return nil, fmt.Errorf("kernel: creating swap directory: %w", err)
	}

	diskFile, rawDisk, err := openDisk(cfg)
	if err != nil {
		return nil, err
	}
	// cache sits between the raw file and the rest of the storage stack,
	// the successor to the original kernel's CacheDisk. Every process's
	// goroutine can reach the same file system concurrently (Fork, the
	// shell running several programs at once), so the cached disk still
	// needs SynchDisk's one-request-in-flight serialization on top.
	cache := sectorcache.New(rawDisk, int(cfg.NumSectors))
	disk := diskio.NewSyncDisk(cache)

	var fs *diskfs.FileSystem
	if cfg.Format {
		fs, err = diskfs.Format(disk, cfg.ExitOnInvariantViolation)
	} else {
		fs, err = diskfs.Mount(disk, cfg.ExitOnInvariantViolation)
	}
	if err != nil {
		diskFile.Close()
		return nil, fmt.Errorf("kernel: initializing file system: %w", err)
	}

	sched := threads.NewScheduler()
	paging := vm.NewPagingSystem(cfg.NumFrames, cfg.PageSize, cfg.SwapDir)
	console := syscallpkg.IOConsole{W: os.Stdout, R: os.Stdin}

	k := &Kernel{
		cfg:        cfg,
		diskFile:   diskFile,
		cache:      cache,
		disk:       disk,
		fs:         fs,
		sched:      sched,
		paging:     paging,
		console:    console,
		Dispatcher: syscallpkg.NewDispatcher(fs, sched, paging, cfg.SwapDir, console),
	}
	logger.Infof("kernel: ready (disk=%q sectors=%d pages=%d frames=%d)",
		cfg.DiskPath, cfg.NumSectors, cfg.PageSize, cfg.NumFrames)
	return k, nil
}

func openDisk(cfg Config) (*os.File, *diskio.FileDisk, error) {
	size := int64(cfg.SectorSize) * int64(cfg.NumSectors)

	flags := os.O_RDWR
	_, err := os.Stat(cfg.DiskPath)
	needsTruncate := cfg.Format || os.IsNotExist(err)
	if os.IsNotExist(err) {
		flags |= os.O_CREATE
	} else if err != nil {
		return nil, nil, fmt.Errorf("kernel: statting disk %q: %w", cfg.DiskPath, err)
	}

	f, err := os.OpenFile(cfg.DiskPath, flags, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("kernel: opening disk %q: %w", cfg.DiskPath, err)
	}
	if needsTruncate {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("kernel: sizing disk %q: %w", cfg.DiskPath, err)
		}
	}
	return f, diskio.NewFileDisk(f, cfg.SectorSize, cfg.NumSectors), nil
}

// Scheduler returns the kernel's cooperative thread scheduler, exposed for
// callers (cmd/nachos) that need to wait on the last foreground process.
func (k *Kernel) Scheduler() *threads.Scheduler { return k.sched }

// FileSystem returns the kernel's mounted file system, exposed for
// out-of-band inspection (fsck) and for the shell's cd/ls-style commands.
func (k *Kernel) FileSystem() *diskfs.FileSystem { return k.fs }

// Paging returns the kernel's paging system, exposed for diagnostics
// (frame/swap occupancy reporting).
func (k *Kernel) Paging() *vm.PagingSystem { return k.paging }

// Close flushes every dirty sector still held in the block cache back to
// disk, then releases the kernel's disk file. Swap files are not
// persisted beyond the disk image itself, matching the original's lack of
// a graceful-shutdown path for in-flight paging state (it only ever ran
// until the process exited).
func (k *Kernel) Close() error {
	if err := k.cache.Flush(); err != nil {
		k.diskFile.Close()
		return fmt.Errorf("kernel: flushing block cache: %w", err)
	}
	return k.diskFile.Close()
}
