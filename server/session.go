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
	"encoding/json"
	"net"
	"os"
	"sync/atomic"

	"github.com/photobackup/photobackup/pkg/treelog"
	"github.com/photobackup/photobackup/pkg/wire"
)

// Session is one accepted control connection. It runs a request loop
// until the peer closes the stream or a fatal codec error occurs.
type Session struct {
	server *Server
	conn   net.Conn
	codec  *wire.Codec

	batch *batchProcessor
}

func (sess *Session) run() {
	defer sess.conn.Close()
	sess.codec = wire.NewCodec(sess.conn)

	if err := sess.codec.WriteResponse(wire.Greeting()); err != nil {
		log.Errorf("session: sending greeting: %v", err)
		return
	}

	for {
		req, err := sess.codec.ReadRequest()
		if err != nil {
			log.Infof("session: request loop ending: %v", err)
			if sess.batch != nil {
				sess.batch.stop()
			}
			return
		}
		switch req.Type {
		case wire.GetRepos, wire.CreateRepo, wire.RemoveRepository, wire.SetStoragePath,
			wire.StartBatchProcessor, wire.EndBatchProcessor, wire.GetRepoTree:
		default:
			log.Warnf("session: unrecognised request type %q, closing connection", req.Type)
			if sess.batch != nil {
				sess.batch.stop()
			}
			return
		}
		resp := sess.handle(req)
		if err := sess.codec.WriteResponse(resp); err != nil {
			log.Errorf("session: writing response: %v", err)
			return
		}
	}
}

func (sess *Session) handle(req wire.Request) wire.Response {
	switch req.Type {
	case wire.SetStoragePath:
		return sess.handleSetStoragePath(req)
	case wire.GetRepos:
		return sess.handleGetRepos()
	case wire.CreateRepo:
		return sess.handleCreateRepo(req)
	case wire.RemoveRepository:
		return sess.handleRemoveRepository(req)
	case wire.GetRepoTree:
		return sess.handleGetRepoTree(req)
	case wire.StartBatchProcessor:
		return sess.handleStartBatchProcessor()
	case wire.EndBatchProcessor:
		return sess.handleEndBatchProcessor()
	default:
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: "unrecognised request type"}
	}
}

func (sess *Session) handleSetStoragePath(req wire.Request) wire.Response {
	path := string(req.Body)
	if err := sess.server.setStorageDir(path); err != nil {
		return wire.Response{StatusCode: wire.NotFound, StatusMessage: "storage path does not exist"}
	}
	return wire.Response{StatusCode: wire.OK, StatusMessage: "storage path set"}
}

func (sess *Session) handleGetRepos() wire.Response {
	repos := sess.server.repoList()
	if len(repos) == 0 {
		return wire.Response{StatusCode: wire.Empty, StatusMessage: "no repositories"}
	}
	body, err := json.Marshal(repos)
	if err != nil {
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: err.Error()}
	}
	return wire.Response{StatusCode: wire.OK, Body: body}
}

func (sess *Session) handleCreateRepo(req wire.Request) wire.Response {
	name := sanitizeRepoName(string(req.Body))
	dir := sess.server.repoDir(name)
	if _, err := os.Stat(dir); err == nil {
		return wire.Response{StatusCode: wire.Duplicate, StatusMessage: "repository already exists"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Errorf("session: creating repo %q: %v", name, err)
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: err.Error()}
	}
	if err := sess.server.addRepo(name); err != nil {
		log.Errorf("session: persisting repo %q: %v", name, err)
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: err.Error()}
	}
	tr := treelog.New(name, sess.server.treePath(name))
	if err := sess.server.saveTree(tr); err != nil {
		log.Errorf("session: persisting fresh tree for %q: %v", name, err)
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: err.Error()}
	}
	return wire.Response{StatusCode: wire.OK, StatusMessage: "repository created"}
}

func (sess *Session) handleRemoveRepository(req wire.Request) wire.Response {
	name := sanitizeRepoName(string(req.Body))
	if err := os.RemoveAll(sess.server.repoDir(name)); err != nil {
		log.Warnf("session: removing repo directory %q: %v", name, err)
	}
	if err := os.Remove(sess.server.treePath(name)); err != nil && !os.IsNotExist(err) {
		log.Warnf("session: removing tree file for %q: %v", name, err)
	}
	if err := sess.server.removeRepo(name); err != nil {
		log.Errorf("session: persisting removal of %q: %v", name, err)
	}
	return wire.Response{StatusCode: wire.OK, StatusMessage: "repository removed"}
}

func (sess *Session) handleGetRepoTree(req wire.Request) wire.Response {
	var body wire.GetRepoTreeRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: "malformed GetRepoTree body"}
	}
	tr := sess.server.loadTree(body.RepoName)
	if tr.Version <= body.Version {
		return wire.Response{StatusCode: wire.OK, StatusMessage: "up to date"}
	}
	since := tr.HistorySince(body.Version)
	out, err := json.Marshal(since)
	if err != nil {
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: err.Error()}
	}
	return wire.Response{StatusCode: wire.OK, Body: out}
}

func (sess *Session) handleStartBatchProcessor() wire.Response {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		log.Errorf("session: binding batch processor port: %v", err)
		return wire.Response{StatusCode: wire.InternalError, StatusMessage: err.Error()}
	}
	bp := &batchProcessor{server: sess.server, ln: ln}
	sess.batch = bp
	go bp.run()

	// The listener is bound to 0.0.0.0, which isn't a dialable address
	// from the client's side; report the port reachable on whichever
	// local address the control connection itself arrived on.
	host, _, _ := net.SplitHostPort(sess.conn.LocalAddr().String())
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return wire.Response{StatusCode: wire.OK, StatusMessage: net.JoinHostPort(host, port)}
}

func (sess *Session) handleEndBatchProcessor() wire.Response {
	if sess.batch != nil {
		sess.batch.stop()
		sess.batch = nil
	}
	return wire.Response{StatusCode: wire.OK, StatusMessage: "batch processor stopped"}
}

// stopped reports whether flag has been raised; a small helper used
// by the batch processor's cooperative-cancellation polling between
// batches, mirroring the stop-flag discipline used throughout the
// client side (see client/listener.go).
func stopped(flag *atomic.Bool) bool {
	return flag.Load()
}
