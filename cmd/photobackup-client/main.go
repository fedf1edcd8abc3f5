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

// Command photobackup-client is the photobackup client daemon. It has
// no CLI surface beyond launch: it loads ClientConfig, connects to the
// configured server, starts a Repo Event Listener for every
// auto_connect repo, and prints status updates to the terminal as the
// narrowest possible stand-in for the UI this module doesn't own.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/photobackup/photobackup/client"
	"github.com/photobackup/photobackup/internal/bus"
	"github.com/photobackup/photobackup/internal/logging"
	"github.com/photobackup/photobackup/pkg/config"
)

func main() {
	log := logging.For("photobackup-client")

	cfg, ok := config.LoadClientConfig(config.DefaultClientConfigPath)
	if !ok {
		log.Warnf("no usable config at %s, starting from defaults", config.DefaultClientConfigPath)
	}

	b := bus.New()
	sess := client.NewSession(cfg, config.DefaultClientConfigPath, "trees", b)
	go sess.Run()
	go printStatuses(log, b)

	if cfg.ServerAddress != "" {
		if err := sess.Connect(cfg.ServerAddress); err != nil {
			log.Errorf("connecting to %s: %v", cfg.ServerAddress, err)
		} else {
			for name, repo := range cfg.Repos {
				if repo.AutoConnect {
					b.SendCommand(bus.Command{Kind: bus.StartEventListener, RepoName: name, Path: repo.WatchDirectory})
				}
			}
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Infof("shutting down")
	sess.Disconnect()
}

func printStatuses(log logging.Logger, b *bus.Bus) {
	for st := range b.Statuses {
		switch st.Kind {
		case bus.Log:
			log.Infof("%s", st.Text)
		case bus.Notify:
			log.Infof("notify: %s", st.Text)
		case bus.UpdateConnectionStatus:
			log.Infof("connection status: connected=%v", st.Connected)
		case bus.UpdateRepoStatus:
			log.Infof("repo %s status=%d", st.RepoName, st.RepoStatus)
		case bus.PostRepos:
			log.Infof("server repos: %v", st.Repos)
		case bus.PostRepoTree:
			log.Infof("tree updated for repo %s", st.RepoName)
		case bus.RemoveRepositoryStatus:
			log.Infof("repo %s removed", st.RepoName)
		}
	}
}
