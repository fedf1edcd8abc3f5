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
	"encoding/json"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/photobackup/photobackup/internal/bus"
	"github.com/photobackup/photobackup/pkg/config"
	"github.com/photobackup/photobackup/pkg/treelog"
	"github.com/photobackup/photobackup/pkg/wire"
)

// joinTimeout bounds how long Disconnect and handleDisconnectStream
// wait for a listener's Stop call to return before abandoning it. Stop
// only raises the stop flag and closes the watcher; neither caller
// waits for the listener's Run goroutine itself to return.
const joinTimeout = 2 * time.Second

// Session is the Client Session state machine (C5): it owns the
// control socket, the Batch Loader, and every active Repo Event
// Listener, and is driven exclusively by Commands arriving on Bus.
type Session struct {
	Config     config.ClientConfig
	ConfigPath string
	TreesDir   string
	Bus        *bus.Bus

	mu        sync.Mutex
	state     ConnState
	conn      net.Conn
	codec     *wire.Codec
	loader    *BatchLoader
	listeners map[string]*RepoEventListener
	trees     map[string]*treelog.Tree
}

// NewSession returns a Session in the Disconnected state.
func NewSession(cfg config.ClientConfig, configPath, treesDir string, b *bus.Bus) *Session {
	return &Session{
		Config:     cfg,
		ConfigPath: configPath,
		TreesDir:   treesDir,
		Bus:        b,
		state:      Disconnected,
		listeners:  make(map[string]*RepoEventListener),
		trees:      make(map[string]*treelog.Tree),
	}
}

func (s *Session) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.Bus.SendStatus(bus.Status{Kind: bus.UpdateConnectionStatus, Connected: st == Connected})
}

// State reports the session's current state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drains Commands from Bus until it is closed, dispatching each
// to its handler. This is the session's one receive-loop.
func (s *Session) Run() {
	for cmd := range s.Bus.Commands {
		s.dispatch(cmd)
	}
}

func (s *Session) dispatch(cmd bus.Command) {
	switch cmd.Kind {
	case bus.CreateRepo:
		s.handleCreateRepo(cmd.RepoName)
	case bus.GetRepoTree:
		s.handleGetRepoTree(cmd.RepoName)
	case bus.SetStoragePath:
		s.handleSetStoragePath(cmd.Path)
	case bus.StartEventListener:
		s.handleStartEventListener(cmd.RepoName, cmd.Path)
	case bus.DisconnectStream:
		s.handleDisconnectStream(cmd.RepoName)
	case bus.RemoveRepositoryCmd:
		s.handleRemoveRepository(cmd.RepoName)
	case bus.DiscoverUntracked:
		s.handleDiscoverUntracked(cmd.RepoName)
	}
}

// Connect opens the control socket, consumes its greeting, starts the
// server's Batch Processor, connects to it, and spawns the Batch
// Loader. On any failure the session stays/returns to Disconnected.
func (s *Session) Connect(serverAddr string) error {
	s.setState(Connecting)

	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		s.setState(Disconnected)
		return errors.Wrap(err, "client: dialing control socket")
	}
	codec := wire.NewCodec(conn)
	if _, err := codec.ReadResponse(); err != nil {
		conn.Close()
		s.setState(Disconnected)
		return errors.Wrap(err, "client: reading control greeting")
	}

	if err := codec.WriteRequest(wire.Request{Type: wire.StartBatchProcessor}); err != nil {
		conn.Close()
		s.setState(Disconnected)
		return errors.Wrap(err, "client: requesting batch processor")
	}
	resp, err := codec.ReadResponse()
	if err != nil || resp.StatusCode != wire.OK {
		conn.Close()
		s.setState(Disconnected)
		return errors.Errorf("client: StartBatchProcessor failed: %v (%s)", err, resp.StatusMessage)
	}

	fileConn, err := net.Dial("tcp", resp.StatusMessage)
	if err != nil {
		conn.Close()
		s.setState(Disconnected)
		return errors.Wrap(err, "client: dialing file socket")
	}
	fileCodec := wire.NewCodec(fileConn)
	if _, err := fileCodec.ReadResponse(); err != nil {
		conn.Close()
		fileConn.Close()
		s.setState(Disconnected)
		return errors.Wrap(err, "client: reading file socket greeting")
	}

	s.mu.Lock()
	s.conn = conn
	s.codec = codec
	s.loader = NewBatchLoader(fileConn, s.Bus)
	s.mu.Unlock()
	go s.loader.Run()

	s.setState(Connected)
	log.Infof("client: last successful backup was %s", config.ReadLastBackup(config.DefaultLastBackupPath).Format(time.RFC3339))

	if s.Config.ServerStorageDirectory != "" {
		s.handleGetRepos()
	}
	return nil
}

func (s *Session) handleGetRepos() {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()
	if codec == nil {
		return
	}
	if err := codec.WriteRequest(wire.Request{Type: wire.GetRepos}); err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Log, Text: "GetRepos: " + err.Error()})
		return
	}
	resp, err := codec.ReadResponse()
	if err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Log, Text: "GetRepos: " + err.Error()})
		return
	}
	if resp.StatusCode == wire.Empty {
		s.Bus.SendStatus(bus.Status{Kind: bus.PostRepos, Repos: nil})
		return
	}
	var repos []string
	if err := json.Unmarshal(resp.Body, &repos); err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Log, Text: "GetRepos: decoding response: " + err.Error()})
		return
	}
	for _, r := range repos {
		s.loadCachedTree(r)
	}
	s.Bus.SendStatus(bus.Status{Kind: bus.PostRepos, Repos: repos})
}

func (s *Session) loadCachedTree(repo string) *treelog.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.trees[repo]; ok {
		return tr
	}
	tr, _ := treelog.LoadFromFile(repo, s.treePath(repo))
	s.trees[repo] = tr
	return tr
}

func (s *Session) treePath(repo string) string {
	return filepath.Join(s.TreesDir, repo+".tree")
}

func (s *Session) handleCreateRepo(repo string) {
	s.roundTrip(wire.CreateRepo, []byte(repo), func(resp wire.Response) {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: "CreateRepo(" + repo + "): " + string(resp.StatusCode)})
	})
}

func (s *Session) handleRemoveRepository(repo string) {
	s.roundTrip(wire.RemoveRepository, []byte(repo), func(resp wire.Response) {
		s.mu.Lock()
		delete(s.trees, repo)
		if l, ok := s.listeners[repo]; ok {
			l.Stop()
			delete(s.listeners, repo)
		}
		s.mu.Unlock()
		s.Bus.SendStatus(bus.Status{Kind: bus.RemoveRepositoryStatus, RepoName: repo})
	})
}

func (s *Session) handleSetStoragePath(path string) {
	s.roundTrip(wire.SetStoragePath, []byte(path), func(resp wire.Response) {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: "SetStoragePath: " + string(resp.StatusCode)})
	})
}

func (s *Session) handleGetRepoTree(repo string) {
	tr := s.loadCachedTree(repo)
	body, err := json.Marshal(wire.GetRepoTreeRequest{RepoName: repo, Version: tr.Version})
	if err != nil {
		return
	}
	s.roundTrip(wire.GetRepoTree, body, func(resp wire.Response) {
		if resp.StatusCode != wire.OK || len(resp.Body) == 0 {
			s.Bus.SendStatus(bus.Status{Kind: bus.PostRepoTree, RepoName: repo, Tree: tr})
			return
		}
		var entries map[string]string
		if err := json.Unmarshal(resp.Body, &entries); err != nil {
			log.Warnf("session: decoding tree update for %s: %v", repo, err)
			return
		}
		applyEntries(tr, entries)
		s.mu.Lock()
		_ = tr.SaveToFile(s.treePath(repo))
		s.mu.Unlock()
		s.Bus.SendStatus(bus.Status{Kind: bus.PostRepoTree, RepoName: repo, Tree: tr})
	})
}

// applyEntries merges a server-supplied {version -> op} map into tr
// via add_history followed by apply_history, per the spec's catch-up
// protocol. Versions already present locally (tr.Version already past
// them) are skipped; any gap between the local version and the lowest
// new key is filled with empty ops so AddHistory's indices keep
// matching the server's, since applyOp already no-ops on "".
func applyEntries(tr *treelog.Tree, entries map[string]string) {
	top := -1
	for k := range entries {
		if n, err := strconv.Atoi(k); err == nil && n > top {
			top = n
		}
	}
	for tr.Version <= top {
		op := entries[strconv.Itoa(tr.Version)]
		idx := tr.AddHistory(op)
		tr.Apply(idx)
	}
}

func (s *Session) handleStartEventListener(repo, dir string) {
	s.mu.Lock()
	if _, exists := s.listeners[repo]; exists {
		s.mu.Unlock()
		return
	}
	trackMods := s.Config.Repos[repo].TrackModifications
	loader := s.loader
	l := NewRepoEventListener(repo, dir, trackMods, loader)
	s.listeners[repo] = l
	s.mu.Unlock()

	s.Bus.SendStatus(bus.Status{Kind: bus.UpdateRepoStatus, RepoName: repo, RepoStatus: bus.RepoSyncing})
	go l.Run()
}

func (s *Session) handleDisconnectStream(repo string) {
	s.mu.Lock()
	l, ok := s.listeners[repo]
	if ok {
		delete(s.listeners, repo)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	joinWithTimeout(l.Stop, joinTimeout, func() {
		log.Warnf("session: listener for %s did not stop within %s, abandoning", repo, joinTimeout)
	})
}

func (s *Session) handleDiscoverUntracked(repo string) {
	s.mu.Lock()
	dir := s.Config.Repos[repo].WatchDirectory
	loader := s.loader
	s.mu.Unlock()

	tr := s.loadCachedTree(repo)
	scan := NewDiscoveryScan(repo, dir)
	batch, err := scan.Run(tr)
	if err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: "discovery scan failed: " + err.Error()})
		return
	}
	if len(batch) == 0 {
		return
	}
	if err := loader.EnqueueAndWait(batch); err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: "discovery batch failed: " + err.Error()})
		return
	}
	s.handleGetRepoTree(repo)
}

// Disconnect signals every active listener's stop flag (waiting at most
// joinTimeout for each Stop call, not for the listener's Run to
// return), stops the Batch Loader, closes the file socket and the
// control socket, and returns to Disconnected. A batch the loader is
// still writing when the file socket closes fails.
func (s *Session) Disconnect() {
	s.setState(Disconnecting)

	s.mu.Lock()
	listeners := make([]*RepoEventListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listeners = make(map[string]*RepoEventListener)
	loader, conn := s.loader, s.conn
	s.mu.Unlock()

	for _, l := range listeners {
		joinWithTimeout(l.Stop, joinTimeout, func() {
			log.Warnf("session: listener did not stop within %s, abandoning", joinTimeout)
		})
	}
	if loader != nil {
		loader.Stop()
		loader.conn.Close()
	}
	if conn != nil {
		conn.Close()
	}
	s.setState(Disconnected)
}

func (s *Session) roundTrip(reqType wire.RequestType, body []byte, onResponse func(wire.Response)) {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()
	if codec == nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: "not connected"})
		return
	}
	if err := codec.WriteRequest(wire.Request{Type: reqType, Body: body}); err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: err.Error()})
		return
	}
	resp, err := codec.ReadResponse()
	if err != nil {
		s.Bus.SendStatus(bus.Status{Kind: bus.Notify, Text: err.Error()})
		return
	}
	onResponse(resp)
}

// joinWithTimeout runs stop in its own goroutine, waits up to d for it
// to return (cooperative stop flags are expected to return promptly),
// and calls onTimeout if it does not; it never actually kills a
// goroutine, so a stuck stop call is abandoned rather than awaited.
func joinWithTimeout(stop func(), d time.Duration, onTimeout func()) {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		onTimeout()
	}
}
