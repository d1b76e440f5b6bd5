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

// Command nachos drives the simulated kernel from the host command line:
// formatting a disk image, running a NOFF executable against it, and
// checking a disk image's consistency. It is the Go-domain successor to
// the original nachos binary's argv-parsed `-f`/`-x`/`-cp` test harness in
// main.cc, reimplemented with cobra the way gcsfuse's own cmd package
// drives its subcommands.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
