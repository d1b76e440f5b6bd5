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
	"io"
	"os"

	"github.com/nachos-go/kernel/internal/kernel"
	"github.com/spf13/cobra"
)

// cpCmd implements the original's -cp flag: copy a host file onto the
// simulated disk so it can later be named by run. Nachos executables are
// ordinary NOFF-format files as far as the file system is concerned, so
// this is a plain byte copy, not anything NOFF-aware.
var cpCmd = &cobra.Command{
	Use:   "cp <host-path> <nachos-path>",
	Short: "Copy a host file onto the disk image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostPath, nachosPath := args[0], args[1]

		data, err := os.ReadFile(hostPath)
		if err != nil {
			return fmt.Errorf("cp: reading %q: %w", hostPath, err)
		}

		k, err := kernel.New(configFromFlags(false))
		if err != nil {
			return fmt.Errorf("cp: %w", err)
		}
		defer k.Close()

		if !k.Dispatcher.Create(nachosPath) {
			return fmt.Errorf("cp: creating %q on disk image", nachosPath)
		}
		// Dispatcher.Open/Write take a *syscall.Process to track the
		// handle under; cp has no running process, so it writes through
		// the file system directly instead of going through the syscall
		// boundary.
		if err := writeDirect(k, nachosPath, data); err != nil {
			return fmt.Errorf("cp: writing %q: %w", nachosPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "copied %s -> %s (%d bytes)\n", hostPath, nachosPath, len(data))
		return nil
	},
}

func writeDirect(k *kernel.Kernel, path string, data []byte) error {
	h, err := k.FileSystem().Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	_, err = h.Write(data, 0)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}
