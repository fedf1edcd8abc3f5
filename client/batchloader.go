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
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/photobackup/photobackup/internal/bus"
	"github.com/photobackup/photobackup/pkg/config"
	"github.com/photobackup/photobackup/pkg/fileheader"
	"github.com/photobackup/photobackup/pkg/wire"
)

// chunkSize is the size every payload is split into on the wire; it
// must not exceed the server's 1 MiB cap.
const chunkSize = 256 * 1024

// Job is one file's header paired with its payload, immutable once
// queued.
type Job struct {
	Header  fileheader.Header
	Payload []byte
}

// BatchJob is an ordered sequence of Jobs submitted as a single
// protocol atom; batches are the unit of acknowledgement.
type BatchJob []Job

// batchRequest pairs a submitted batch with an optional completion
// signal. done is nil for fire-and-forget submissions (the common
// case, from Repo Event Listeners); Discovery Scans set it so they can
// wait for the Loader's ack (its "Done" signal) before requesting a
// fresh Tree.
type batchRequest struct {
	batch BatchJob
	done  chan error
}

// BatchLoader is the sole writer of the file socket. Repo Event
// Listeners and Discovery Scans never touch the socket directly; they
// submit BatchJobs through Enqueue/EnqueueAndWait, and the Loader
// serialises them one at a time, forwarding the server's per-batch
// acknowledgement to the UI bus as a Notify status.
type BatchLoader struct {
	conn           net.Conn
	codec          *wire.Codec
	statuses       *bus.Bus
	requests       chan batchRequest
	lastBackupPath string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBatchLoader wraps conn (already past its greeting) as the file
// socket for a single Client Session's lifetime.
func NewBatchLoader(conn net.Conn, statuses *bus.Bus) *BatchLoader {
	return &BatchLoader{
		conn:           conn,
		codec:          wire.NewCodec(conn),
		statuses:       statuses,
		requests:       make(chan batchRequest, 32),
		lastBackupPath: config.DefaultLastBackupPath,
		stopCh:         make(chan struct{}),
	}
}

// Enqueue submits batch without waiting for it to be sent.
func (l *BatchLoader) Enqueue(batch BatchJob) {
	l.requests <- batchRequest{batch: batch}
}

// EnqueueAndWait submits batch and blocks until the Loader has sent it
// and received the server's acknowledgement (or hit a fatal error).
func (l *BatchLoader) EnqueueAndWait(batch BatchJob) error {
	done := make(chan error, 1)
	l.requests <- batchRequest{batch: batch, done: done}
	return <-done
}

// Stop closes the loader's stop channel, waking Run if it is parked
// waiting for the next request; a batch already being written
// completes before the run loop observes it.
func (l *BatchLoader) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run drains requests until Stop is called or a socket error occurs.
// It selects on stopCh alongside requests so an idle loader (no batch
// in flight) wakes up immediately on Stop instead of blocking on the
// channel receive forever. On error it stops itself and drains
// without sending, so queued producers don't block forever on a dead
// loader.
func (l *BatchLoader) Run() {
	for {
		select {
		case <-l.stopCh:
			l.drain()
			return
		case req := <-l.requests:
			err := l.sendBatch(req.batch)
			if req.done != nil {
				req.done <- err
			}
			if err != nil {
				log.Errorf("batchloader: fatal error, stopping: %v", err)
				l.Stop()
				l.statuses.SendStatus(bus.Status{Kind: bus.Notify, Text: "backup connection lost: " + err.Error()})
				l.drain()
				return
			}
		}
	}
}

// drain discards every request currently queued without blocking,
// signalling EnqueueAndWait callers so they don't hang past shutdown.
func (l *BatchLoader) drain() {
	for {
		select {
		case req := <-l.requests:
			if req.done != nil {
				req.done <- errors.New("batchloader: stopped")
			}
		default:
			return
		}
	}
}

func (l *BatchLoader) sendBatch(batch BatchJob) error {
	if err := writeU32(l.conn, uint32(len(batch))); err != nil {
		return err
	}
	for _, job := range batch {
		if err := l.writeJob(job); err != nil {
			return err
		}
	}
	resp, err := l.codec.ReadResponse()
	if err != nil {
		return errors.Wrap(err, "batchloader: reading batch ack")
	}
	l.statuses.SendStatus(bus.Status{Kind: bus.Notify, Text: "batch acknowledged: " + string(resp.StatusCode)})
	if resp.StatusCode == wire.OK {
		if err := config.WriteLastBackup(l.lastBackupPath, time.Now()); err != nil {
			log.Warnf("batchloader: recording last-backup marker: %v", err)
		}
	}
	return nil
}

func (l *BatchLoader) writeJob(job Job) error {
	hdr, err := fileheader.Encode(job.Header)
	if err != nil {
		return errors.Wrap(err, "batchloader: encoding header")
	}
	if err := writeU32(l.conn, uint32(len(hdr))); err != nil {
		return err
	}
	if _, err := l.conn.Write(hdr); err != nil {
		return err
	}

	payload := job.Payload
	for len(payload) > 0 {
		n := chunkSize
		if n > len(payload) {
			n = len(payload)
		}
		if err := writeU32(l.conn, uint32(n)); err != nil {
			return err
		}
		if _, err := l.conn.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return writeU32(l.conn, 0) // end-of-payload sentinel
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
