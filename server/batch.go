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

package server

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/photobackup/photobackup/pkg/fileheader"
	"github.com/photobackup/photobackup/pkg/treelog"
	"github.com/photobackup/photobackup/pkg/wire"
)

// maxChunkSize is the hard cap a chunk_size field may declare; chunks
// larger than this are a protocol violation, not merely slow.
const maxChunkSize = 1 << 20

// batchProcessor is the single-connection acceptor bound to the
// ephemeral port a Session handed out via StartBatchProcessor. It
// accepts exactly one connection, then loops reading BatchJobs until
// the stream closes or its stop flag is raised.
type batchProcessor struct {
	server *Server
	ln     net.Listener
	stopFl atomic.Bool

	trees map[string]*treelog.Tree
}

func (bp *batchProcessor) stop() {
	bp.stopFl.Store(true)
	bp.ln.Close()
}

func (bp *batchProcessor) run() {
	conn, err := bp.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	token := uuid.New().String()
	log.Infof("batch: accepted file-channel connection from %s, session token %s", conn.RemoteAddr(), token)

	bp.trees = make(map[string]*treelog.Tree)
	codec := wire.NewCodec(conn)
	if err := codec.WriteResponse(wire.Greeting()); err != nil {
		log.Errorf("batch: sending greeting: %v", err)
		return
	}

	for {
		if stopped(&bp.stopFl) {
			return
		}
		if err := bp.readBatch(conn); err != nil {
			if err == io.EOF {
				return
			}
			log.Errorf("batch: aborting connection: %v", err)
			return
		}
		if err := codec.WriteResponse(wire.Response{StatusCode: wire.OK}); err != nil {
			log.Errorf("batch: acking batch: %v", err)
			return
		}
	}
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// readBatch reads one BatchJob frame off conn and writes each job's
// payload to its resolved destination, updating that repo's Tree.
func (bp *batchProcessor) readBatch(conn net.Conn) error {
	numJobs, err := readU32(conn)
	if err != nil {
		return err
	}
	for i := uint32(0); i < numJobs; i++ {
		if err := bp.readJob(conn); err != nil {
			return errors.Wrap(err, "batch: reading job")
		}
	}
	return nil
}

func (bp *batchProcessor) readJob(conn net.Conn) error {
	headerSize, err := readU32(conn)
	if err != nil {
		return err
	}
	if headerSize > fileheader.MaxEncodedSize {
		return errors.Errorf("batch: header_size %d exceeds cap", headerSize)
	}
	headerBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(conn, headerBuf); err != nil {
		return err
	}
	hdr, err := fileheader.Decode(headerBuf)
	if err != nil {
		return errors.Wrap(err, "batch: decoding header")
	}

	destPath, err := bp.writePayload(conn, hdr)
	if err != nil {
		return err
	}

	tr := bp.treeFor(hdr.RepoName)
	idx := tr.AddHistory(treelog.CreateOp(filepath.ToSlash(destPath)))
	tr.Apply(idx)
	if err := bp.server.saveTree(tr); err != nil {
		return errors.Wrap(err, "batch: persisting tree")
	}
	return nil
}

// writePayload streams the chunked payload following a job's header
// to a temp file in the destination directory, then fsyncs and
// renames it into place; the same discipline package treelog and
// package config use for their own on-disk state.
func (bp *batchProcessor) writePayload(conn net.Conn, hdr fileheader.Header) (string, error) {
	destDir := filepath.Join(bp.server.repoDir(hdr.RepoName))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, "batch: creating destination directory")
	}
	destPath := filepath.Join(destDir, hdr.FileName)

	tmp, err := os.CreateTemp(destDir, ".upload-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "batch: creating temp file")
	}
	tmpName := tmp.Name()
	abort := func(cause error) (string, error) {
		tmp.Close()
		os.Remove(tmpName)
		return "", cause
	}

	for {
		chunkSize, err := readU32(conn)
		if err != nil {
			return abort(err)
		}
		if chunkSize == 0 {
			break
		}
		if chunkSize > maxChunkSize {
			return abort(errors.Errorf("batch: chunk_size %d exceeds 1 MiB cap", chunkSize))
		}
		if _, err := io.CopyN(tmp, conn, int64(chunkSize)); err != nil {
			return abort(err)
		}
	}

	if err := tmp.Sync(); err != nil {
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return destPath, nil
}

// treeFor returns the cached Tree for repo, lazily loading it from
// disk on first reference within this batch processor's lifetime.
func (bp *batchProcessor) treeFor(repo string) *treelog.Tree {
	if tr, ok := bp.trees[repo]; ok {
		return tr
	}
	tr := bp.server.loadTree(repo)
	bp.trees[repo] = tr
	return tr
}
