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

// Package fileheader defines the metadata record carried ahead of
// every file's payload on the batch channel, and its compact binary
// codec.
package fileheader

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MaxEncodedSize is the hard cap on an encoded FileHeader, enforced by
// both the writer (Encode refuses to overflow it) and the reader (a
// header_size field beyond this is a protocol violation).
const MaxEncodedSize = 1024

// Header is the metadata that precedes a single file's payload on the
// batch channel (see pkg/fileheader doc and the BatchJob wire frame in
// package server/batch.go). FileLocation is informational only: the
// server never trusts it for path resolution.
type Header struct {
	RepoName     string
	FileName     string
	FileExt      string
	FileSize     uint64
	FileDatetime time.Time
	FileLocation string
}

// Encode serializes h as: four length-prefixed UTF-8 strings
// (RepoName, FileName, FileExt, FileLocation), a big-endian u64
// FileSize, and a big-endian i64 FileDatetime (Unix nanoseconds).
// String lengths are u16-prefixed, which combined with MaxEncodedSize
// is ample for filesystem paths and names.
func Encode(h Header) ([]byte, error) {
	buf := make([]byte, 0, 256)
	var err error
	for _, s := range []string{h.RepoName, h.FileName, h.FileExt, h.FileLocation} {
		buf, err = appendString(buf, s)
		if err != nil {
			return nil, err
		}
	}
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], h.FileSize)
	buf = append(buf, sizeBuf[:]...)

	var timeBuf [8]byte
	binary.BigEndian.PutUint64(timeBuf[:], uint64(h.FileDatetime.UnixNano()))
	buf = append(buf, timeBuf[:]...)

	if len(buf) > MaxEncodedSize {
		return nil, fmt.Errorf("fileheader: encoded size %d exceeds cap of %d", len(buf), MaxEncodedSize)
	}
	return buf, nil
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > 1<<16-1 {
		return nil, fmt.Errorf("fileheader: field of %d bytes too long to encode", len(s))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf, nil
}

// Decode is the inverse of Encode. It never reads more than len(buf),
// and rejects a buf longer than MaxEncodedSize; the batch processor
// additionally rejects an oversized header_size before reading the
// header at all.
func Decode(buf []byte) (Header, error) {
	if len(buf) > MaxEncodedSize {
		return Header{}, fmt.Errorf("fileheader: header of %d bytes exceeds cap of %d", len(buf), MaxEncodedSize)
	}
	var h Header
	fields := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		s, rest, err := readString(buf)
		if err != nil {
			return Header{}, err
		}
		fields = append(fields, s)
		buf = rest
	}
	h.RepoName, h.FileName, h.FileExt, h.FileLocation = fields[0], fields[1], fields[2], fields[3]

	if len(buf) < 16 {
		return Header{}, fmt.Errorf("fileheader: truncated size/time trailer")
	}
	h.FileSize = binary.BigEndian.Uint64(buf[:8])
	nanos := int64(binary.BigEndian.Uint64(buf[8:16]))
	h.FileDatetime = time.Unix(0, nanos).UTC()
	return h, nil
}

func readString(buf []byte) (s string, rest []byte, err error) {
	if len(buf) < 2 {
		return "", nil, fmt.Errorf("fileheader: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("fileheader: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}
