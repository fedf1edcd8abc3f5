/*
Copyright 2026 The Photobackup Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBirthTimeOfFreshFileIsCloseToNowWhenSupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	bt, ok := BirthTime(path, info)
	if !ok {
		t.Skip("birth time not available on this platform/filesystem")
	}
	assert.WithinDuration(t, time.Now(), bt, time.Minute)
}

// fakeFileInfo is a minimal os.FileInfo whose Sys() carries no
// platform stat_t, exercising the type-assertion-fails path the
// Darwin implementation takes and the path-driven statx failure the
// Linux implementation takes for a file that was never created.
type fakeFileInfo struct{ os.FileInfo }

func (fakeFileInfo) Sys() interface{} { return nil }

func TestBirthTimeOfMissingFileIsCleanMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	_, ok := BirthTime(path, fakeFileInfo{})
	assert.False(t, ok)
}
