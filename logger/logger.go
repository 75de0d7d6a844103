// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 The Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package logger provides the kernel core's leveled logging, a thin
// wrapper around the standard library's log.Logger with a swappable
// global instance so tests can capture or silence output.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Flag controls which levels are emitted.
type Flag int

const (
	// FlagNotice emits Notice and Panic messages only (the default).
	FlagNotice Flag = iota
	// FlagDebug additionally emits Debug messages.
	FlagDebug
	// FlagTrace additionally emits Trace messages, the noisiest level.
	FlagTrace
)

// Logger is the minimal leveled-logging surface the rest of the
// kernel core depends on.
type Logger interface {
	Noticef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Tracef(format string, args ...interface{})
	Panicf(format string, args ...interface{})
}

type stdLogger struct {
	mu   sync.Mutex
	l    *log.Logger
	flag Flag
}

func (s *stdLogger) output(prefix, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.Output(3, prefix+fmt.Sprintf(format, args...))
}

func (s *stdLogger) Noticef(format string, args ...interface{}) {
	s.output("NOTICE: ", format, args...)
}

func (s *stdLogger) Debugf(format string, args ...interface{}) {
	if s.flag >= FlagDebug {
		s.output("DEBUG: ", format, args...)
	}
}

func (s *stdLogger) Tracef(format string, args ...interface{}) {
	if s.flag >= FlagTrace {
		s.output("TRACE: ", format, args...)
	}
}

func (s *stdLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.output("PANIC: ", "%s", msg)
	panic(msg)
}

var (
	globalMu sync.Mutex
	global   Logger = New(os.Stderr, FlagNotice)
)

// New builds a Logger writing to w at the given verbosity.
func New(w io.Writer, flag Flag) Logger {
	return &stdLogger{l: log.New(w, "", log.Ltime), flag: flag}
}

// SetLogger replaces the package-global logger, returning the
// previous one so callers (tests) can restore it.
func SetLogger(l Logger) Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := global
	global = l
	return prev
}

func current() Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

func Noticef(format string, args ...interface{}) { current().Noticef(format, args...) }
func Debugf(format string, args ...interface{})  { current().Debugf(format, args...) }
func Tracef(format string, args ...interface{})  { current().Tracef(format, args...) }
func Panicf(format string, args ...interface{})  { current().Panicf(format, args...) }
