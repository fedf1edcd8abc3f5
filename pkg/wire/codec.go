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

package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize bounds a single length-prefixed frame. Requests and
// responses on this protocol are small control messages; anything
// claiming to be bigger than this is treated as a protocol violation
// rather than an attempt to read gigabytes into memory.
const maxFrameSize = 16 << 20

// Codec frames JSON-encoded Requests and Responses on a single
// underlying stream with a big-endian u32 length prefix. It never
// blocks on the application; it only blocks on the underlying
// connection. Writes are serialized with writeMu so that concurrent
// callers never interleave partial frames on the wire.
type Codec struct {
	rw      io.ReadWriter
	writeMu sync.Mutex
}

// NewCodec wraps rw (typically a net.Conn) in a Codec.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw}
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: reading frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds %d byte cap", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: reading frame body: %w", err)
	}
	return buf, nil
}

func writeFrame(w io.Writer, mu *sync.Mutex, payload []byte) error {
	mu.Lock()
	defer mu.Unlock()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: writing frame body: %w", err)
	}
	return nil
}

// ReadRequest blocks until a full Request frame has arrived, or
// returns a fatal error on a short read or malformed JSON.
func (c *Codec) ReadRequest() (Request, error) {
	buf, err := readFrame(c.rw)
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(buf, &req); err != nil {
		return Request{}, fmt.Errorf("wire: decoding request: %w", err)
	}
	return req, nil
}

// WriteRequest sends req as a single atomic frame.
func (c *Codec) WriteRequest(req Request) error {
	buf, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("wire: encoding request: %w", err)
	}
	return writeFrame(c.rw, &c.writeMu, buf)
}

// ReadResponse blocks until a full Response frame has arrived.
func (c *Codec) ReadResponse() (Response, error) {
	buf, err := readFrame(c.rw)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(buf, &resp); err != nil {
		return Response{}, fmt.Errorf("wire: decoding response: %w", err)
	}
	return resp, nil
}

// WriteResponse sends resp as a single atomic frame.
func (c *Codec) WriteResponse(resp Response) error {
	buf, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("wire: encoding response: %w", err)
	}
	return writeFrame(c.rw, &c.writeMu, buf)
}
