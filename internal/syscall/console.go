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

package syscall

import "io"

// Console is the narrow contract the (out-of-scope) synchronized console
// device must satisfy, mirroring exception.cc's synchConsole->PutString/
// GetString calls for the CONSOLE_OUTPUT/CONSOLE_INPUT handles.
type Console interface {
	PutString(p []byte) (int, error)
	GetString(p []byte) (int, error)
}

// IOConsole adapts a plain io.Writer/io.Reader pair (a terminal, a pipe, a
// test buffer) to Console.
type IOConsole struct {
	W io.Writer
	R io.Reader
}

func (c IOConsole) PutString(p []byte) (int, error) { return c.W.Write(p) }
func (c IOConsole) GetString(p []byte) (int, error) { return c.R.Read(p) }
