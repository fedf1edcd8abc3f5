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
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photobackup/photobackup/internal/bus"
	"github.com/photobackup/photobackup/pkg/config"
	"github.com/photobackup/photobackup/pkg/treelog"
	"github.com/photobackup/photobackup/pkg/wire"
)

// fakeServer accepts exactly one control connection and one file
// connection, sending greetings and answering whatever the test feeds
// it through handle.
type fakeServer struct {
	controlLn net.Listener
	fileLn    net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	cLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeServer{controlLn: cLn, fileLn: fLn}
}

func (f *fakeServer) close() {
	f.controlLn.Close()
	f.fileLn.Close()
}

func TestSessionConnectPerformsHandshake(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.close()

	go func() {
		conn, err := fs.controlLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		codec := wire.NewCodec(conn)
		codec.WriteResponse(wire.Greeting())

		req, err := codec.ReadRequest()
		if err != nil || req.Type != wire.StartBatchProcessor {
			return
		}
		codec.WriteResponse(wire.Response{StatusCode: wire.OK, StatusMessage: fs.fileLn.Addr().String()})

		// keep the control connection open for the session's lifetime
		time.Sleep(200 * time.Millisecond)
	}()
	go func() {
		conn, err := fs.fileLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.NewCodec(conn).WriteResponse(wire.Greeting())
		time.Sleep(200 * time.Millisecond)
	}()

	b := bus.New()
	sess := NewSession(config.ClientConfig{}, filepath.Join(t.TempDir(), "client.json"), t.TempDir(), b)
	require.NoError(t, sess.Connect(fs.controlLn.Addr().String()))
	assert.Equal(t, Connected, sess.State())

	statuses := b.DrainStatuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, bus.UpdateConnectionStatus, statuses[len(statuses)-1].Kind)
	assert.True(t, statuses[len(statuses)-1].Connected)

	sess.Disconnect()
	assert.Equal(t, Disconnected, sess.State())
}

func TestSessionCreateRepoRoundTrip(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.close()

	go func() {
		conn, err := fs.controlLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		codec := wire.NewCodec(conn)
		codec.WriteResponse(wire.Greeting())

		req, _ := codec.ReadRequest()
		if req.Type == wire.StartBatchProcessor {
			codec.WriteResponse(wire.Response{StatusCode: wire.OK, StatusMessage: fs.fileLn.Addr().String()})
		}
		req, _ = codec.ReadRequest()
		if req.Type == wire.CreateRepo {
			codec.WriteResponse(wire.Response{StatusCode: wire.OK, StatusMessage: "created"})
		}
	}()
	go func() {
		conn, err := fs.fileLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.NewCodec(conn).WriteResponse(wire.Greeting())
		time.Sleep(200 * time.Millisecond)
	}()

	b := bus.New()
	sess := NewSession(config.ClientConfig{}, filepath.Join(t.TempDir(), "client.json"), t.TempDir(), b)
	require.NoError(t, sess.Connect(fs.controlLn.Addr().String()))
	b.DrainStatuses()

	sess.handleCreateRepo("alpha")
	statuses := b.DrainStatuses()
	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0].Text, "OK")
}

func TestApplyEntriesAdvancesTreeVersion(t *testing.T) {
	tr := treelog.New("alpha", "")
	entries := map[string]string{"0": "+/srv/alpha/a.jpg", "1": "+/srv/alpha/b.jpg"}
	applyEntries(tr, entries)
	assert.Equal(t, 2, tr.Version)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, tr.Content["alpha"])
}
