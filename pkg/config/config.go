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

// Package config persists the client and server's opaque
// configuration documents: server endpoint, storage roots and
// per-repo options. It is the sole authority on those files' shape;
// the desktop UI and the on-disk JSON format itself are out of scope
// for this module, which only needs to load and save them.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// DefaultClientConfigPath is the client's config file name, resolved
// relative to the working directory unless overridden.
const DefaultClientConfigPath = "photo-client-config.json"

// DefaultServerConfigPath is the server's config file name.
const DefaultServerConfigPath = "photo-server-config.json"

// RepoConfig holds per-repository client options.
type RepoConfig struct {
	WatchDirectory     string `json:"watch_directory"`
	AutoConnect        bool   `json:"auto_connect"`
	TrackModifications bool   `json:"track_modifications"`
}

// ClientConfig is the client's persisted configuration document.
type ClientConfig struct {
	ServerAddress          string                `json:"server_address"`
	ServerStorageDirectory string                `json:"server_storage_directory"`
	Repos                  map[string]RepoConfig `json:"repos"`
}

// ServerConfig is the server's persisted configuration document.
type ServerConfig struct {
	StorageDirectory string   `json:"storage_directory"`
	RepoList         []string `json:"repo_list"`
}

// LoadClientConfig reads path, returning an all-defaults ClientConfig
// (with ok=false) if the file is absent or malformed. Callers should
// mirror a diagnostic to their log sink when ok is false, but must
// never treat it as fatal.
func LoadClientConfig(path string) (cfg ClientConfig, ok bool) {
	cfg = ClientConfig{Repos: make(map[string]RepoConfig)}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, false
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ClientConfig{Repos: make(map[string]RepoConfig)}, false
	}
	if cfg.Repos == nil {
		cfg.Repos = make(map[string]RepoConfig)
	}
	return cfg, true
}

// SaveClientConfig writes cfg to path using the same
// temp-then-rename discipline as Tree files (see package treelog),
// since a config file is the second kind of shared on-disk state this
// system has to protect against partial writes.
func SaveClientConfig(path string, cfg ClientConfig) error {
	return saveJSON(path, cfg)
}

// LoadServerConfig reads path, returning an all-defaults ServerConfig
// (with ok=false) if the file is absent or malformed.
func LoadServerConfig(path string) (cfg ServerConfig, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, false
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, false
	}
	return cfg, true
}

// SaveServerConfig writes cfg to path atomically.
func SaveServerConfig(path string, cfg ServerConfig) error {
	return saveJSON(path, cfg)
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// AddRepo registers name in the server's repo list if not already
// present.
func (c *ServerConfig) AddRepo(name string) {
	for _, r := range c.RepoList {
		if r == name {
			return
		}
	}
	c.RepoList = append(c.RepoList, name)
}

// RemoveRepo removes name from the server's repo list, if present.
func (c *ServerConfig) RemoveRepo(name string) {
	out := c.RepoList[:0]
	for _, r := range c.RepoList {
		if r != name {
			out = append(out, r)
		}
	}
	c.RepoList = out
}

// HasRepo reports whether name is already registered.
func (c *ServerConfig) HasRepo(name string) bool {
	for _, r := range c.RepoList {
		if r == name {
			return true
		}
	}
	return false
}
