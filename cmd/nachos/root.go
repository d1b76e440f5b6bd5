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

package main

import (
	"github.com/nachos-go/kernel/internal/kernel"
	"github.com/nachos-go/kernel/internal/logger"
	"github.com/spf13/cobra"
)

var diskFlags struct {
	diskPath   string
	swapDir    string
	sectorSize uint32
	numSectors uint32
	pageSize   uint32
	numFrames  uint32
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "nachos",
	Short: "Run and inspect a simulated Nachos-style disk and kernel",
	Long: `nachos drives the simulated kernel: formatting a disk image,
running a user program against it, and checking a disk image's
consistency, all against a single host file standing in for the
simulated disk.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetLevel(logger.Severity(diskFlags.logLevel))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&diskFlags.diskPath, "disk", "nachos.img", "Path to the simulated disk image")
	pf.StringVar(&diskFlags.swapDir, "swap-dir", "nachos-swap", "Directory for address-space swap files")
	pf.Uint32Var(&diskFlags.sectorSize, "sector-size", kernel.DefaultSectorSize, "Disk sector size in bytes")
	pf.Uint32Var(&diskFlags.numSectors, "num-sectors", kernel.DefaultNumSectors, "Number of sectors on the disk")
	pf.Uint32Var(&diskFlags.pageSize, "page-size", kernel.DefaultPageSize, "Page/frame size in bytes")
	pf.Uint32Var(&diskFlags.numFrames, "num-frames", kernel.DefaultNumFrames, "Number of physical frames")
	pf.StringVar(&diskFlags.logLevel, "log-level", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF")

	rootCmd.AddCommand(formatCmd, runCmd, fsckCmd, cpCmd)
}

func configFromFlags(format bool) kernel.Config {
	return kernel.Config{
		DiskPath:   diskFlags.diskPath,
		SwapDir:    diskFlags.swapDir,
		SectorSize: diskFlags.sectorSize,
		NumSectors: diskFlags.numSectors,
		PageSize:   diskFlags.pageSize,
		NumFrames:  diskFlags.numFrames,
		Format:     format,
		// A running kernel process aborts on a detected internal
		// consistency violation rather than trying to recover, matching
		// the original simulator's ASSERT behavior.
		ExitOnInvariantViolation: true,
	}
}
