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

//go:build linux

package fsutil

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func init() {
	birthTimeFn = func(path string, fi os.FileInfo) (time.Time, bool) {
		var stx unix.Statx_t
		err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx)
		if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
			return time.Time{}, false
		}
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
	}
}
