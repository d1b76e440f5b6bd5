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
	"os"

	"github.com/nachos-go/kernel/internal/kernel"
	syscallpkg "github.com/nachos-go/kernel/internal/syscall"
	"github.com/spf13/cobra"
)

var runExitCode int

// runCmd implements the original's -x flag: load a NOFF executable from
// the mounted disk and run it to completion. There is no MIPS instruction
// emulator in this kernel (the MIPS emulator is an explicitly out-of-scope
// external component), so the
// "instruction loop" here is a stand-in that marshals argv onto the
// child's stack exactly as a real emulator's libc startup code would read
// it back, echoes it to the console, and exits — enough to exercise the
// whole Exec/argv/Join pipeline end to end without interpreting any guest
// instructions.
var runCmd = &cobra.Command{
	Use:   "run <path> [args...]",
	Short: "Load and run a NOFF executable from the disk image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := kernel.New(configFromFlags(false))
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		defer k.Close()

		path, argv := args[0], args[1:]
		pid, err := k.Dispatcher.Exec(path, argv, true, stubProgramEntry(k))
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		status, err := k.Dispatcher.Join(pid)
		if err != nil {
			return fmt.Errorf("run: joining pid %d: %w", pid, err)
		}
		runExitCode = status
		if status != 0 {
			os.Exit(status)
		}
		return nil
	},
}

func stubProgramEntry(k *kernel.Kernel) syscallpkg.ProgramEntry {
	return func(proc *syscallpkg.Process) int {
		mem := &syscallpkg.AddressSpaceMemory{
			Space: proc.AddressSpace(),
			Sys:   k.Paging(),
		}
		_, argvAddr, _ := proc.StartupRegisters()
		argv, err := syscallpkg.SaveArgs(mem, argvAddr)
		if err != nil {
			k.Dispatcher.Exit(proc, 1)
			return 1
		}
		for _, a := range argv {
			k.Dispatcher.Write(proc, []byte(a+"\n"), syscallpkg.ConsoleOutput)
		}
		k.Dispatcher.Exit(proc, 0)
		return 0
	}
}
