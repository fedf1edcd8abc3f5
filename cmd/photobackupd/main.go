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

// Command photobackupd is the photobackup server daemon. It accepts
// an optional positional port argument (default 8080) and binds
// 0.0.0.0:<port>.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/photobackup/photobackup/internal/logging"
	"github.com/photobackup/photobackup/pkg/config"
	"github.com/photobackup/photobackup/server"
)

const defaultPort = 8080

func main() {
	log := logging.For("photobackupd")

	port := defaultPort
	if len(os.Args) > 1 {
		p, err := strconv.Atoi(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "photobackupd: invalid port %q\n", os.Args[1])
			os.Exit(2)
		}
		port = p
	}

	srv := server.New(config.DefaultServerConfigPath)
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorf("listening on %s: %v", addr, err)
		os.Exit(1)
	}
	log.Infof("photobackupd listening on %s", addr)

	if err := srv.Serve(ln); err != nil {
		log.Errorf("serve: %v", err)
		os.Exit(1)
	}
}
