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

// Package capturetime extracts a photo's original capture time from
// its embedded metadata, for use as the Repo Event Listener's
// FileHeader.FileDatetime in preference to the filesystem's own
// creation timestamp. Extraction is a best-effort pre-filter: any
// unsupported extension or parse failure is a clean miss, never an
// error, and callers are expected to fall back to the filesystem time.
package capturetime

import (
	"os"
	"strings"
	"time"

	_ "github.com/nf/cr2"
	"github.com/rwcarlsen/goexif/exif"
)

// Extractor extracts a capture time from the file at path, which has
// the given extension (without the leading dot, in whatever case the
// file name uses). It reports
// ok=false on any miss: unsupported extension, unreadable file, or
// metadata the underlying decoder cannot parse.
type Extractor func(path, ext string) (t time.Time, ok bool)

// Default is the Extractor wired into the Repo Event Listener unless
// overridden: EXIF DateTimeOriginal for JPEG/TIFF, and CR2's embedded
// TIFF/EXIF block for Canon raw files.
func Default(path, ext string) (time.Time, bool) {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg", "tif", "tiff":
		return fromEXIF(path)
	case "cr2":
		return fromCR2(path)
	default:
		return time.Time{}, false
	}
}

func fromEXIF(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// fromCR2 reads a Canon raw file's capture time. CR2 is TIFF-based and
// carries a conventional EXIF IFD, so the same EXIF decoder used for
// JPEG reads it directly; the blank import of cr2 above registers the
// format with the standard image package so the rest of this program
// can treat .cr2 like any other decodable image (e.g. for future
// thumbnailing), even though that registration isn't needed just to
// pull DateTimeOriginal back out.
func fromCR2(path string) (time.Time, bool) {
	return fromEXIF(path)
}
