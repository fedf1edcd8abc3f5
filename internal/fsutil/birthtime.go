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

// Package fsutil reaches past os.FileInfo for the one stat field Go's
// standard library doesn't expose portably: a file's creation time.
// Platform-specific files below fill in birthTimeFn; the portable
// default here reports no birth time available, the signal callers use
// to fall back to modification time.
package fsutil

import (
	"os"
	"time"
)

// birthTimeFn is overridden by this package's platform-specific init
// functions (see birthtime_linux.go, birthtime_darwin.go).
var birthTimeFn = func(path string, fi os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}

// BirthTime reports path's filesystem creation time, if the platform
// and filesystem expose one. ok is false on any unsupported platform,
// unsupported filesystem, or stat failure; callers fall back to
// fi.ModTime() in that case.
func BirthTime(path string, fi os.FileInfo) (time.Time, bool) {
	return birthTimeFn(path, fi)
}
