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
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/photobackup/photobackup/internal/capturetime"
	"github.com/photobackup/photobackup/internal/fsutil"
	"github.com/photobackup/photobackup/pkg/fileheader"
)

// StabilityCheckInterval is the poll period used by the stability
// detector. Exported so callers (and tests) can shrink it.
var StabilityCheckInterval = 100 * time.Millisecond

// StabilityChecks is the number of consecutive unchanged-size reads
// required before a file is deemed stable.
const StabilityChecks = 10

// RepoEventListener watches watchDirectory recursively and, once a
// newly created (or, when TrackModifications is set, modified) file's
// size has stabilised, wraps it in a single-job BatchJob and submits
// it to the shared Batch Loader channel.
type RepoEventListener struct {
	RepoName           string
	WatchDirectory     string
	TrackModifications bool
	Extract            capturetime.Extractor
	Loader             *BatchLoader

	stopFl  atomic.Bool
	watcher *fsnotify.Watcher
}

// NewRepoEventListener returns a listener using the default EXIF/CR2
// capture-time extractor.
func NewRepoEventListener(repo, dir string, trackMods bool, loader *BatchLoader) *RepoEventListener {
	return &RepoEventListener{
		RepoName:           repo,
		WatchDirectory:     dir,
		TrackModifications: trackMods,
		Extract:            capturetime.Default,
		Loader:             loader,
	}
}

// Stop raises the listener's stop flag. The current stability poll, if
// any, completes before the listener exits.
func (l *RepoEventListener) Stop() {
	l.stopFl.Store(true)
	if l.watcher != nil {
		l.watcher.Close()
	}
}

// Run starts the recursive watch and blocks until Stop is called or
// the watcher itself fails irrecoverably.
func (l *RepoEventListener) Run() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("listener[%s]: creating watcher: %v", l.RepoName, err)
		return
	}
	l.watcher = w
	defer w.Close()

	if err := addRecursive(w, l.WatchDirectory); err != nil {
		log.Errorf("listener[%s]: watching %s: %v", l.RepoName, l.WatchDirectory, err)
		return
	}

	for {
		if l.stopFl.Load() {
			return
		}
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			l.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("listener[%s]: fsnotify error: %v", l.RepoName, err)
		}
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (l *RepoEventListener) handleEvent(ev fsnotify.Event) {
	isCreate := ev.Op&fsnotify.Create != 0
	isModify := ev.Op&fsnotify.Write != 0 && l.TrackModifications
	if !isCreate && !isModify {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		// Disappeared before we could stat it; not an error.
		return
	}
	if info.IsDir() {
		if isCreate {
			if err := l.watcher.Add(ev.Name); err != nil {
				log.Warnf("listener[%s]: watching new directory %s: %v", l.RepoName, ev.Name, err)
			}
		}
		return
	}
	if strings.HasSuffix(ev.Name, ".part") {
		return
	}

	if !l.waitForStability(ev.Name) {
		return
	}
	job, err := l.buildJob(ev.Name)
	if err != nil {
		log.Warnf("listener[%s]: building job for %s: %v", l.RepoName, ev.Name, err)
		return
	}
	l.Loader.Enqueue(BatchJob{job})
}

// waitForStability polls the file's size every StabilityCheckInterval
// for StabilityChecks consecutive reads; it returns false if the stop
// flag is raised or the file disappears mid-check, neither of which is
// an error.
func (l *RepoEventListener) waitForStability(path string) bool {
	var lastSize int64 = -1
	consistent := 0
	for consistent < StabilityChecks {
		if l.stopFl.Load() {
			return false
		}
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize {
			consistent++
		} else {
			consistent = 1
			lastSize = info.Size()
		}
		time.Sleep(StabilityCheckInterval)
	}
	return true
}

func (l *RepoEventListener) buildJob(path string) (Job, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Job{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Job{}, err
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	// ModTime is a last-resort fallback; the creation timestamp is
	// what file_datetime actually means, and EXIF's own capture time,
	// when present, wins over both.
	captureTime := info.ModTime()
	if bt, ok := fsutil.BirthTime(path, info); ok {
		captureTime = bt
	}
	if l.Extract != nil {
		if t, ok := l.Extract(path, ext); ok {
			captureTime = t
		}
	}
	return Job{
		Header: fileheader.Header{
			RepoName:     l.RepoName,
			FileName:     filepath.Base(path),
			FileExt:      ext,
			FileSize:     uint64(len(payload)),
			FileDatetime: captureTime,
			FileLocation: path,
		},
		Payload: payload,
	}, nil
}
