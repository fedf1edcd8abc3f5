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

// Package logging is the structured logging sink every component in
// this module writes through. It wraps logrus so that every entry
// carries the emitting component's name, and writes to stderr only: it
// does not forward entries to the UI's status bus (see package
// internal/bus); components that need to reach the UI send a Status on
// the bus themselves.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped handle onto the shared logrus logger.
type Logger struct {
	entry *logrus.Entry
}

var base = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}()

// For returns a Logger scoped to component, e.g. "tree", "session",
// "batch", "listener", "discovery".
func For(component string) Logger {
	return Logger{entry: base.WithField("component", component)}
}

// SetLevel adjusts verbosity for every Logger; mirrors the role
// spec.md's Notify/Log split plays at the UI boundary, but at process
// granularity for operators running the daemons directly.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

func (l Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// WithRepo scopes the logger further to a specific repository, so log
// lines for concurrently active repos are distinguishable.
func (l Logger) WithRepo(repo string) Logger {
	return Logger{entry: l.entry.WithField("repo", repo)}
}
