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

// Package client implements the photobackup client: the session state
// machine driven by a Command/Status bus, the single-writer Batch
// Loader, per-repo filesystem listeners, and one-shot discovery scans.
package client

import (
	"github.com/photobackup/photobackup/internal/logging"
)

var log = logging.For("client")

// ConnState is the Client Session's state machine, per spec:
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}
