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

// formatCmd implements the original's -f flag as its own subcommand: lay
// down a fresh bitmap file and root directory, discarding anything already
// on the disk image.
var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Initialize a fresh file system on the disk image",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := kernel.New(configFromFlags(true))
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		defer k.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "formatted %s\n", diskFlags.diskPath)
		return nil
	},
}
