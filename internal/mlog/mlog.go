// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mlog is the structured logger shared by every mperf-go
// binary and long-running package (collector, dispatcher,
// postprocess). It wraps zerolog so call sites log fields instead of
// formatting strings, and so every log line carries the component
// that emitted it.
package mlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	zl zerolog.Logger
}

var base = newBase(os.Stderr)

func newBase(w io.Writer) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Logger()
}

// SetOutput redirects every future logger's destination; tests use
// this to capture output instead of writing to stderr.
func SetOutput(w io.Writer) {
	base = newBase(w)
}

// SetLevel sets the minimum level logged process-wide.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// New returns a Logger tagged with component, e.g. "collector" or
// "postprocess".
func New(component string) Logger {
	return Logger{zl: base.With().Str("component", component).Logger()}
}

func (l Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs at error level and exits with status 1. Unlike
// zerolog.Logger.Fatal, it does not abuse the Fatal level itself,
// keeping "something is wrong enough to log" separate from "the
// process is about to exit" for callers that want to recover instead.
func (l Logger) Fatal(err error, msg string) {
	l.zl.Error().Err(err).Msg(msg)
	os.Exit(1)
}
