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

//go:build darwin

package fsutil

import (
	"os"
	"syscall"
	"time"
)

func init() {
	birthTimeFn = func(path string, fi os.FileInfo) (time.Time, bool) {
		st, ok := fi.Sys().(*syscall.Stat_t)
		if !ok {
			return time.Time{}, false
		}
		sec, nsec := st.Birthtimespec.Unix()
		if sec == 0 {
			return time.Time{}, false
		}
		return time.Unix(sec, nsec), true
	}
}
