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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photobackup/photobackup/pkg/treelog"
)

func TestDiscoveryScanFindsOnlyUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "known.jpg"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("b"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "inner.jpg"), []byte("c"), 0o644))

	repoName := filepath.Base(dir)
	tr := treelog.New(repoName, "")
	tr.AddHistory(treelog.CreateOp(filepath.ToSlash(filepath.Join(dir, "known.jpg"))))
	tr.ApplyFrom(0)

	scan := NewDiscoveryScan(repoName, dir)
	batch, err := scan.Run(tr)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, job := range batch {
		names[job.Header.FileName] = true
	}
	assert.True(t, names["new.jpg"])
	assert.True(t, names["inner.jpg"])
	assert.False(t, names["known.jpg"])
}

func TestDiscoveryScanOnFullyTrackedRepoReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("a"), 0o644))

	repoName := filepath.Base(dir)
	tr := treelog.New(repoName, "")
	tr.AddHistory(treelog.CreateOp(filepath.ToSlash(filepath.Join(dir, "a.jpg"))))
	tr.ApplyFrom(0)

	scan := NewDiscoveryScan(repoName, dir)
	batch, err := scan.Run(tr)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
