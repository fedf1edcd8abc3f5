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

package config

import (
	"os"
	"strings"
	"time"
)

// DefaultLastBackupPath is where the client records the wall-clock
// time of its most recent successful batch acknowledgement.
const DefaultLastBackupPath = "last_backup.txt"

// lastBackupLayout matches spec: %Y-%m-%d %H:%M:%S%.f %:z.
const lastBackupLayout = "2006-01-02 15:04:05.000000000 -07:00"

// ReadLastBackup returns the timestamp in path. If the file is
// missing or malformed, it falls back to "now minus one second"
// rather than failing: an absent marker must never block a fresh
// client from treating everything as not-yet-backed-up.
func ReadLastBackup(path string) time.Time {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Now().Add(-time.Second)
	}
	t, err := time.Parse(lastBackupLayout, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Now().Add(-time.Second)
	}
	return t
}

// WriteLastBackup records t in path, formatted per spec.
func WriteLastBackup(path string, t time.Time) error {
	return os.WriteFile(path, []byte(t.Format(lastBackupLayout)), 0o644)
}
