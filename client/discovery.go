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
	"strings"

	"github.com/photobackup/photobackup/internal/capturetime"
	"github.com/photobackup/photobackup/internal/fsutil"
	"github.com/photobackup/photobackup/pkg/fileheader"
	"github.com/photobackup/photobackup/pkg/treelog"
)

// DiscoveryScan is a one-shot depth-first traversal of a repo's
// watch directory, looking for files the Tree doesn't yet know about.
// Tracking is by leaf name, the same limitation the Tree's replay rule
// has (see package treelog and the Open Questions this carries
// forward from the original design).
type DiscoveryScan struct {
	RepoName       string
	WatchDirectory string
	Extract        capturetime.Extractor
}

// NewDiscoveryScan returns a scan using the default capture-time
// extractor.
func NewDiscoveryScan(repo, dir string) *DiscoveryScan {
	return &DiscoveryScan{RepoName: repo, WatchDirectory: dir, Extract: capturetime.Default}
}

// Run walks WatchDirectory against a scratch copy of known's content
// map and returns a BatchJob of every file not already tracked under
// its parent directory's child list. known is never mutated.
func (d *DiscoveryScan) Run(known *treelog.Tree) (BatchJob, error) {
	scratch := make(map[string][]string, len(known.Content))
	for k, v := range known.Content {
		cp := make([]string, len(v))
		copy(cp, v)
		scratch[k] = cp
	}

	var untracked []string
	err := filepath.Walk(d.WatchDirectory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == d.WatchDirectory {
			return nil
		}
		parent := filepath.Base(filepath.Dir(path))
		name := filepath.Base(path)
		if info.IsDir() {
			if _, ok := scratch[name]; !ok {
				scratch[name] = nil
			}
			return nil
		}
		if !containsName(scratch[parent], name) {
			untracked = append(untracked, path)
			scratch[parent] = append(scratch[parent], name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch := make(BatchJob, 0, len(untracked))
	for _, path := range untracked {
		payload, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("discovery[%s]: reading %s: %v", d.RepoName, path, err)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		// ModTime is a last-resort fallback; see listener.go's buildJob.
		captureTime := info.ModTime()
		if bt, ok := fsutil.BirthTime(path, info); ok {
			captureTime = bt
		}
		if d.Extract != nil {
			if t, ok := d.Extract(path, ext); ok {
				captureTime = t
			}
		}
		batch = append(batch, Job{
			Header: fileheader.Header{
				RepoName:     d.RepoName,
				FileName:     filepath.Base(path),
				FileExt:      ext,
				FileSize:     uint64(len(payload)),
				FileDatetime: captureTime,
				FileLocation: path,
			},
			Payload: payload,
		})
	}
	return batch, nil
}

func containsName(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
