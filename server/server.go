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

// Package server implements the photobackup server: the accept loop
// that spawns one Server Session per control connection, and each
// session's per-repository Batch Processor.
package server

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"

	"github.com/photobackup/photobackup/internal/logging"
	"github.com/photobackup/photobackup/pkg/config"
	"github.com/photobackup/photobackup/pkg/treelog"
)

var log = logging.For("server")

// Server owns the ServerConfig shared by every session accepted
// against it. Trees are not cached here: loadTree reads them from disk
// on every call, and each Batch Processor keeps its own per-repo cache,
// with disk as the rendezvous point between sessions, per the Tree's
// ownership rule.
type Server struct {
	ConfigPath string
	// TreesDir is where Tree snapshots live, one file per repo named
	// "<repo>.tree". Defaults to "trees" (relative to the process's
	// working directory), matching the spec's default layout.
	TreesDir string

	mu     sync.Mutex
	config config.ServerConfig
	trees  map[string]*treelog.Tree
}

// New loads (or defaults) the ServerConfig at configPath and returns a
// ready Server.
func New(configPath string) *Server {
	cfg, ok := config.LoadServerConfig(configPath)
	if !ok {
		log.Warnf("no usable config at %s, starting from defaults", configPath)
	}
	return &Server{
		ConfigPath: configPath,
		TreesDir:   "trees",
		config:     cfg,
		trees:      make(map[string]*treelog.Tree),
	}
}

// Serve accepts connections on ln forever, spawning one Session per
// accepted connection. It returns only when ln.Accept fails (e.g. the
// listener was closed).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return errors.Wrap(err, "server: accept")
		}
		sess := &Session{server: s, conn: conn}
		go sess.run()
	}
}

func (s *Server) treePath(repo string) string {
	return filepath.Join(s.TreesDir, repo+".tree")
}

// loadTree returns the repo's Tree, reloading it from disk to observe
// any write a concurrent Batch Processor has already committed;
// loadTree itself keeps no in-memory copy.
func (s *Server) loadTree(repo string) *treelog.Tree {
	tr, _ := treelog.LoadFromFile(repo, s.treePath(repo))
	return tr
}

func (s *Server) saveTree(tr *treelog.Tree) error {
	return tr.SaveToFile(s.treePath(tr.Name))
}

func (s *Server) repoDir(repo string) string {
	return filepath.Join(s.storageDir(), repo)
}

func (s *Server) storageDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.StorageDirectory
}

func (s *Server) setStorageDir(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s.mu.Lock()
	s.config.StorageDirectory = path
	cfg := s.config
	s.mu.Unlock()
	return config.SaveServerConfig(s.ConfigPath, cfg)
}

func (s *Server) repoList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.config.RepoList))
	copy(out, s.config.RepoList)
	return out
}

func (s *Server) hasRepo(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.HasRepo(name)
}

func (s *Server) addRepo(name string) error {
	s.mu.Lock()
	s.config.AddRepo(name)
	cfg := s.config
	s.mu.Unlock()
	return config.SaveServerConfig(s.ConfigPath, cfg)
}

func (s *Server) removeRepo(name string) error {
	s.mu.Lock()
	s.config.RemoveRepo(name)
	cfg := s.config
	s.mu.Unlock()
	return config.SaveServerConfig(s.ConfigPath, cfg)
}

// sanitizeRepoName trims surrounding whitespace, then maps control
// characters to '_'. Trimming first means whitespace control
// characters (tab, newline) at either end are stripped rather than
// replaced, matching the original's `.trim()` then
// `.replace(is_control, "_")` order.
func sanitizeRepoName(name string) string {
	trimmed := strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, trimmed)
}
