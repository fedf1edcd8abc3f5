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
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photobackup/photobackup/pkg/fileheader"
	"github.com/photobackup/photobackup/pkg/treelog"
)

// writeTestBatch writes one BatchJob with a single job whose payload
// is split into two chunks, exercising the chunked-payload path.
func writeTestBatch(t *testing.T, conn net.Conn, repo, name string, payload []byte) {
	t.Helper()
	hdr, err := fileheader.Encode(fileheader.Header{
		RepoName:     repo,
		FileName:     name,
		FileExt:      filepath.Ext(name),
		FileSize:     uint64(len(payload)),
		FileDatetime: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	writeU32(t, conn, 1) // batch_num_jobs
	writeU32(t, conn, uint32(len(hdr)))
	_, err = conn.Write(hdr)
	require.NoError(t, err)

	mid := len(payload) / 2
	if mid > 0 {
		writeU32(t, conn, uint32(mid))
		_, err = conn.Write(payload[:mid])
		require.NoError(t, err)
	}
	writeU32(t, conn, uint32(len(payload)-mid))
	_, err = conn.Write(payload[mid:])
	require.NoError(t, err)
	writeU32(t, conn, 0) // end-of-payload sentinel
}

func writeU32(t *testing.T, conn net.Conn, v uint32) {
	t.Helper()
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := conn.Write(buf[:])
	require.NoError(t, err)
}

func TestBatchProcessorWritesFileAndAdvancesTree(t *testing.T) {
	dir := t.TempDir()
	srv := New(filepath.Join(dir, "photo-server-config.json"))
	srv.TreesDir = filepath.Join(dir, "trees")
	require.NoError(t, srv.setStorageDir(dir))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "alpha"), 0o755))

	clientConn, serverConn := net.Pipe()
	bp := &batchProcessor{server: srv, trees: make(map[string]*treelog.Tree)}

	payload := []byte("hello photo bytes")
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, bp.readBatch(serverConn))
	}()
	writeTestBatch(t, clientConn, "alpha", "a.jpg", payload)
	<-done

	got, err := os.ReadFile(filepath.Join(dir, "alpha", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	tr := srv.loadTree("alpha")
	assert.Equal(t, 1, tr.Version)
}
