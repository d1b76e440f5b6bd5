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

package syscall_test

import (
	"testing"

	syscall "github.com/nachos-go/kernel/internal/syscall"
	"github.com/stretchr/testify/require"
)

func TestWriteStringReadStringRoundTrip(t *testing.T) {
	mem := newFakeGuestMemory(64)
	require.NoError(t, syscall.WriteStringToUser(mem, 10, "hello"))

	s, terminated, err := syscall.ReadStringFromUser(mem, 10, 16)
	require.NoError(t, err)
	require.True(t, terminated)
	require.Equal(t, "hello", s)
}

func TestReadStringFromUser_TruncatesWithoutTerminator(t *testing.T) {
	mem := newFakeGuestMemory(64)
	for i, b := range []byte("abcdef") {
		require.NoError(t, mem.WriteByte(uint32(i), b))
	}

	s, terminated, err := syscall.ReadStringFromUser(mem, 0, 4)
	require.NoError(t, err)
	require.False(t, terminated)
	require.Equal(t, "abcd", s)
}

func TestReadBufferWriteBufferRoundTrip(t *testing.T) {
	mem := newFakeGuestMemory(64)
	require.NoError(t, syscall.WriteBufferToUser(mem, 5, []byte("payload")))

	buf, err := syscall.ReadBufferFromUser(mem, 5, 7)
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf))
}
