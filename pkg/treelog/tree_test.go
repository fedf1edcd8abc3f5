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

package treelog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHistoryIsMonotone(t *testing.T) {
	tr := New("alpha", "")
	for i := 0; i < 5; i++ {
		idx := tr.AddHistory(CreateOp("/srv/alpha/f" + string(rune('0'+i))))
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, 5, tr.Version)
	assert.Len(t, tr.History, 5)
	require.NoError(t, tr.Validate())
}

func TestReplayDeterminism(t *testing.T) {
	tr := New("beta", "")
	tr.AddHistory(CreateOp("/srv/beta/x.jpg"))
	tr.AddHistory(CreateOp("/srv/beta/sub/z.jpg"))
	tr.ApplyFrom(0)

	first := cloneContent(tr.Content)
	tr.ApplyFrom(0)
	assert.Equal(t, first, tr.Content)
}

func TestAppendIdempotenceOnReplay(t *testing.T) {
	tr := New("beta", "")
	tr.AddHistory(CreateOp("/srv/beta/x.jpg"))
	tr.ApplyFrom(0)
	assert.Equal(t, []string{"x.jpg"}, tr.Content["beta"])

	// Re-adding the same create op and replaying again must not
	// duplicate the child.
	idx := tr.AddHistory(CreateOp("/srv/beta/x.jpg"))
	tr.Apply(idx)
	assert.Equal(t, []string{"x.jpg"}, tr.Content["beta"])
}

func TestApplyOnlyReplaysNewEntries(t *testing.T) {
	tr := New("beta", "")
	idx0 := tr.AddHistory(CreateOp("/srv/beta/x.jpg"))
	tr.Apply(idx0)
	idx1 := tr.AddHistory(CreateOp("/srv/beta/y.jpg"))
	tr.Apply(idx1)
	assert.ElementsMatch(t, []string{"x.jpg", "y.jpg"}, tr.Content["beta"])
}

func TestReplayAnchorsOnRepoNameAcrossDifferingRoots(t *testing.T) {
	server := New("beta", "")
	server.AddHistory(CreateOp("/srv/storage/beta/sub/z.jpg"))
	server.ApplyFrom(0)

	client := New("beta", "")
	client.AddHistory(CreateOp(filepath.ToSlash(filepath.Join("/home/user/Pictures", "beta", "sub", "z.jpg"))))
	client.ApplyFrom(0)

	assert.Equal(t, server.Content["beta"], client.Content["beta"])
	assert.Equal(t, server.Content["sub"], client.Content["sub"])
}

func TestHistorySinceVersionZeroIsAllEntries(t *testing.T) {
	tr := New("alpha", "")
	tr.AddHistory(CreateOp("/srv/alpha/a"))
	tr.AddHistory(CreateOp("/srv/alpha/b"))
	got := tr.HistorySince(0)
	assert.Len(t, got, 2)
}

func TestHistorySinceStrictlyGreater(t *testing.T) {
	tr := New("alpha", "")
	for i := 0; i < 5; i++ {
		tr.AddHistory(CreateOp("/srv/alpha/f"))
	}
	got := tr.HistorySince(3)
	assert.Len(t, got, 1)
	_, ok := got[4]
	assert.True(t, ok)
}

func TestLoadFromMissingFileYieldsFreshTree(t *testing.T) {
	tr, ok := LoadFromFile("alpha", filepath.Join(t.TempDir(), "does-not-exist.tree"))
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Version)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alpha.tree")
	tr := New("alpha", path)
	tr.AddHistory(CreateOp("/srv/alpha/x.jpg"))
	tr.ApplyFrom(0)
	require.NoError(t, tr.SaveToFile(path))

	loaded, ok := LoadFromFile("alpha", path)
	require.True(t, ok)
	assert.Equal(t, tr.Version, loaded.Version)
	assert.Equal(t, tr.Content, loaded.Content)
}

func cloneContent(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
