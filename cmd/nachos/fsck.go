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
	"fmt"

	"github.com/nachos-go/kernel/internal/kernel"
	"github.com/spf13/cobra"
)

// fsckCmd implements the original's FileSystem::Check as a standalone
// sanity pass: mount the disk image without reformatting it, then build a
// shadow bitmap by walking every reachable inode (diskfs.FileSystem.Check)
// and compare it against the live one, flagging doubly-claimed sectors,
// bad inode headers, and duplicate directory entries along the way.
// diskfs.Mount only opens the bitmap file and loads it into memory; Check
// goes further by accounting for every sector every file and directory in
// the tree actually occupies.
var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Check a disk image's file system for consistency",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := kernel.New(configFromFlags(false))
		if err != nil {
			return fmt.Errorf("fsck: %s is inconsistent: %w", diskFlags.diskPath, err)
		}
		defer k.Close()

		report, err := k.FileSystem().Check()
		if err != nil {
			return fmt.Errorf("fsck: %s is inconsistent: %w", diskFlags.diskPath, err)
		}

		if !report.OK() {
			for _, s := range report.BitmapMismatches {
				fmt.Fprintf(cmd.ErrOrStderr(), "fsck: bitmap disagrees with sector %d's actual use\n", s)
			}
			for _, s := range report.DuplicateSectors {
				fmt.Fprintf(cmd.ErrOrStderr(), "fsck: sector %d claimed by more than one inode\n", s)
			}
			for _, p := range report.BadHeaders {
				fmt.Fprintf(cmd.ErrOrStderr(), "fsck: %s: sector count disagrees with file size\n", p)
			}
			for _, p := range report.DuplicateNames {
				fmt.Fprintf(cmd.ErrOrStderr(), "fsck: %s: duplicate directory entry\n", p)
			}
			return fmt.Errorf("fsck: %s is inconsistent", diskFlags.diskPath)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: consistent (%d dirs, %d files, %d frames, %d free)\n",
			diskFlags.diskPath, report.NumDirs, report.NumFiles, k.Paging().NumFrames(), k.Paging().NumFreeFrames())
		return nil
	},
}
