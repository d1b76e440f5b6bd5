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

package kernel_test

import (
	"path/filepath"
	"testing"

	"github.com/nachos-go/kernel/internal/kernel"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) kernel.Config {
	t.Helper()
	dir := t.TempDir()
	return kernel.Config{
		DiskPath:   filepath.Join(dir, "disk.img"),
		SwapDir:    filepath.Join(dir, "swap"),
		SectorSize: 64,
		NumSectors: 512,
		PageSize:   64,
		NumFrames:  8,
		Format:     true,
	}
}

func TestNew_FormatsAndMounts(t *testing.T) {
	cfg := testConfig(t)

	k, err := kernel.New(cfg)
	require.NoError(t, err)
	defer k.Close()

	require.NoError(t, k.FileSystem().Create("/hello"))

	// Reopening without Format should mount the same file system back.
	require.NoError(t, k.Close())
	cfg.Format = false
	k2, err := kernel.New(cfg)
	require.NoError(t, err)
	defer k2.Close()

	info, err := k2.FileSystem().Stat("/hello")
	require.NoError(t, err)
	require.False(t, info.IsDir)
}

func TestNew_DispatcherServesSyscalls(t *testing.T) {
	cfg := testConfig(t)
	k, err := kernel.New(cfg)
	require.NoError(t, err)
	defer k.Close()

	require.True(t, k.Dispatcher.Create("/greeting"))
	require.True(t, k.Dispatcher.Remove("/greeting"))
}
