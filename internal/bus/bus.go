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

// Package bus implements the two typed, one-way, FIFO channels that
// carry commands from a UI down to a session and status updates back
// up: Command (UI -> Session) and Status (Worker -> UI). Neither
// channel blocks a sender once buffered capacity is available; a UI
// is expected to drain its inbound channel non-blockingly on every
// frame and tolerate any suffix of messages being deferred.
package bus

// CommandKind is the closed set of UI -> Session commands.
type CommandKind int

const (
	CreateRepo CommandKind = iota
	GetRepoTree
	SetStoragePath
	StartEventListener
	DisconnectStream
	RemoveRepositoryCmd
	DiscoverUntracked
)

// Command is one UI -> Session message. Which fields are meaningful
// depends on Kind; unused fields are zero.
type Command struct {
	Kind       CommandKind
	RepoName   string
	Path       string
	ServerAddr string
}

// StatusKind is the closed set of Worker -> UI messages.
type StatusKind int

const (
	Log StatusKind = iota
	Notify
	UpdateConnectionStatus
	UpdateRepoStatus
	PostRepos
	PostRepoTree
	GetSubDir
	RemoveRepositoryStatus
)

// RepoStatus is the value carried by an UpdateRepoStatus message.
type RepoStatus int

const (
	RepoIdle RepoStatus = iota
	RepoConnecting
	RepoSyncing
	RepoUpToDate
	RepoError
)

// Status is one Worker -> UI message. As with Command, only the
// fields relevant to Kind are populated.
type Status struct {
	Kind       StatusKind
	Text       string
	Connected  bool
	RepoName   string
	RepoStatus RepoStatus
	Repos      []string
	Tree       interface{}
	Dir        string
}

// Bus is a pair of FIFO, buffered channels wiring a UI to a session
// and its workers. The buffer size is generous rather than tuned: the
// UI is expected to drain Status continuously, and the session to
// drain Commands continuously, so steady-state occupancy is near
// zero; the buffer only absorbs bursts (e.g. a batch of PostRepoTree
// updates arriving faster than one UI frame).
type Bus struct {
	Commands chan Command
	Statuses chan Status
}

const defaultCapacity = 64

// New returns a Bus with both channels buffered to defaultCapacity.
func New() *Bus {
	return &Bus{
		Commands: make(chan Command, defaultCapacity),
		Statuses: make(chan Status, defaultCapacity),
	}
}

// SendCommand enqueues cmd, blocking only if the buffer is full.
func (b *Bus) SendCommand(cmd Command) {
	b.Commands <- cmd
}

// SendStatus enqueues st, blocking only if the buffer is full.
func (b *Bus) SendStatus(st Status) {
	b.Statuses <- st
}

// DrainStatuses returns every Status currently queued without
// blocking, in FIFO order. This is the non-blocking per-frame drain
// the UI is required to perform.
func (b *Bus) DrainStatuses() []Status {
	var out []Status
	for {
		select {
		case st := <-b.Statuses:
			out = append(out, st)
		default:
			return out
		}
	}
}

// DrainCommands returns every Command currently queued without
// blocking, in FIFO order.
func (b *Bus) DrainCommands() []Command {
	var out []Command
	for {
		select {
		case cmd := <-b.Commands:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// Close closes both channels. Callers must ensure no further Send*
// calls occur afterward.
func (b *Bus) Close() {
	close(b.Commands)
	close(b.Statuses)
}
