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

// Package kerrno defines the closed set of kernel-core error kinds
// (spec §7) and their mapping onto real errno values for the
// syscall façade.
package kerrno

import (
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Kind is one of the error kinds named in spec §7. Every fallible
// kernel operation that cannot succeed returns an error whose chain
// contains exactly one Kind, recoverable with KindOf.
type Kind int

const (
	_ Kind = iota
	ResourceExhausted
	InvalidInput
	NotFound
	AlreadyExists
	NotADirectory
	IsADirectory
	NotEmpty
	CrossDevice
	Loop
	NameTooLong
	PermissionDenied
	BadFileDescriptor
	WouldBlock
	Interrupted
	Timeout
	ConnectionRefused
	NotConnected
	AddressInUse
	Fault
	Busy
)

var kindNames = map[Kind]string{
	ResourceExhausted: "resource exhausted",
	InvalidInput:      "invalid input",
	NotFound:          "not found",
	AlreadyExists:     "already exists",
	NotADirectory:     "not a directory",
	IsADirectory:      "is a directory",
	NotEmpty:          "not empty",
	CrossDevice:       "cross-device link",
	Loop:              "too many symbolic links",
	NameTooLong:       "name too long",
	PermissionDenied:  "permission denied",
	BadFileDescriptor: "bad file descriptor",
	WouldBlock:        "operation would block",
	Interrupted:       "interrupted",
	Timeout:           "timed out",
	ConnectionRefused: "connection refused",
	NotConnected:      "not connected",
	AddressInUse:      "address in use",
	Fault:             "bad address",
	Busy:              "device or resource busy",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error kind"
}

// Error makes a bare Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// kindError is the concrete error type carrying a Kind plus an
// operation-specific message. It is never exported directly; callers
// build one with New and inspect one with KindOf/Is.
type kindError struct {
	kind Kind
	msg  string
	wrap error
}

func (e *kindError) Error() string {
	if e.msg == "" {
		return e.kind.String()
	}
	return e.msg
}

func (e *kindError) Unwrap() error { return e.wrap }

// Is makes errors.Is(err, SomeKind) work by comparing kinds: New(Kind, ...)
// errors compare equal to the bare Kind sentinel when kinds match.
func (e *kindError) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.kind == k
	}
	other, ok := target.(*kindError)
	return ok && other.kind == e.kind
}

// New builds an error of the given kind with a formatted message,
// chaining an optional underlying cause with xerrors so Unwrap keeps
// working through the façade boundary.
func New(kind Kind, format string, args ...interface{}) error {
	err := xerrors.Errorf(format, args...)
	return &kindError{kind: kind, msg: err.Error(), wrap: xerrors.Unwrap(err)}
}

// Wrap attaches kind to an existing error without discarding it.
func Wrap(kind Kind, cause error) error {
	return &kindError{kind: kind, msg: cause.Error(), wrap: cause}
}

// KindOf walks err's chain and returns the first Kind found, or false
// if err (or its chain) carries none of ours.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

// Is reports whether err's chain carries kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var errnoTable = map[Kind]unix.Errno{
	ResourceExhausted: unix.ENOMEM,
	InvalidInput:       unix.EINVAL,
	NotFound:           unix.ENOENT,
	AlreadyExists:      unix.EEXIST,
	NotADirectory:      unix.ENOTDIR,
	IsADirectory:       unix.EISDIR,
	NotEmpty:           unix.ENOTEMPTY,
	CrossDevice:        unix.EXDEV,
	Loop:               unix.ELOOP,
	NameTooLong:        unix.ENAMETOOLONG,
	PermissionDenied:   unix.EACCES,
	BadFileDescriptor:  unix.EBADF,
	WouldBlock:         unix.EAGAIN,
	Interrupted:        unix.EINTR,
	Timeout:            unix.ETIMEDOUT,
	ConnectionRefused:  unix.ECONNREFUSED,
	NotConnected:       unix.ENOTCONN,
	AddressInUse:       unix.EADDRINUSE,
	Fault:              unix.EFAULT,
	Busy:               unix.EBUSY,
}

// Errno maps err onto a negative errno register value as the syscall
// façade returns it (spec §6: "a signed register-sized return
// (negative = errno)"). Errors with no known Kind map to -EINVAL,
// and a nil error maps to 0.
func Errno(err error) int64 {
	if err == nil {
		return 0
	}
	k, ok := KindOf(err)
	if !ok {
		return -int64(unix.EINVAL)
	}
	e, ok := errnoTable[k]
	if !ok {
		return -int64(unix.EINVAL)
	}
	return -int64(e)
}
