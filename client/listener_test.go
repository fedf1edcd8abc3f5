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

package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForStabilityReturnsFalseOnDisappearance(t *testing.T) {
	orig := StabilityCheckInterval
	StabilityCheckInterval = time.Millisecond
	defer func() { StabilityCheckInterval = orig }()

	dir := t.TempDir()
	path := filepath.Join(dir, "gone.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Remove(path))

	l := &RepoEventListener{RepoName: "alpha"}
	assert.False(t, l.waitForStability(path))
}

func TestWaitForStabilityTrueOnUnchangedSize(t *testing.T) {
	orig := StabilityCheckInterval
	StabilityCheckInterval = time.Millisecond
	defer func() { StabilityCheckInterval = orig }()

	dir := t.TempDir()
	path := filepath.Join(dir, "stable.jpg")
	require.NoError(t, os.WriteFile(path, []byte("unchanging content"), 0o644))

	l := &RepoEventListener{RepoName: "alpha"}
	assert.True(t, l.waitForStability(path))
}

func TestWaitForStabilityRespectsStopFlag(t *testing.T) {
	orig := StabilityCheckInterval
	StabilityCheckInterval = 50 * time.Millisecond
	defer func() { StabilityCheckInterval = orig }()

	dir := t.TempDir()
	path := filepath.Join(dir, "stable.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	l := &RepoEventListener{RepoName: "alpha"}
	l.stopFl.Store(true)
	assert.False(t, l.waitForStability(path))
}
