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

package vfs

import (
	"sync"

	"github.com/gokern/gokern/kerrno"
)

// OpenFlags are the capability bits spec §4.3's open names; several
// may be set at once.
type OpenFlags uint8

const (
	ORead OpenFlags = 1 << iota
	OWrite
	OExec
	OAppend
	OCreate
	OExcl
)

// File is the file-like object spec §4.3 describes: a node bound
// with the capability bits requested at open time and its own seek
// cursor. Multiple FD-table slots may share one *File (see package
// fd's dup), in which case they also share the cursor, matching real
// dup() semantics.
type File struct {
	mu     sync.Mutex
	node   Node
	flags  OpenFlags
	cursor int64
}

// Open implements spec §4.3's open(path, options): resolve, optionally
// create, and bind a file-like with the requested capability bits.
func (v *VFS) Open(cwd, path string, flags OpenFlags, perm Perm) (*File, error) {
	n, err := v.Lookup(cwd, path)
	if err != nil {
		if !kerrno.Is(err, kerrno.NotFound) || flags&OCreate == 0 {
			return nil, err
		}
		n, err = v.Create(cwd, path, File, perm, "")
		if err != nil {
			return nil, err
		}
	} else if flags&OCreate != 0 && flags&OExcl != 0 {
		return nil, kerrno.New(kerrno.AlreadyExists, "%s: already exists", path)
	}

	attr, err := n.Attr()
	if err != nil {
		return nil, err
	}
	if attr.Type == Dir && flags&(OWrite|OAppend) != 0 {
		return nil, kerrno.New(kerrno.IsADirectory, "%s: is a directory", path)
	}
	f := &File{node: n, flags: flags}
	if flags&OAppend != 0 {
		f.cursor = int64(attr.Size)
	}
	return f, nil
}

// Read advances the cursor by the number of bytes actually read,
// which may be fewer than len(buf) (a short read is not an error).
func (f *File) Read(buf []byte) (int, error) {
	if f.flags&ORead == 0 {
		return 0, kerrno.New(kerrno.BadFileDescriptor, "file not opened for read")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.node.ReadAt(f.cursor, buf)
	f.cursor += int64(n)
	return n, err
}

// Write appends at the cursor (or forces end-of-file first if opened
// O_APPEND) and advances it by the number of bytes written.
func (f *File) Write(buf []byte) (int, error) {
	if f.flags&OWrite == 0 {
		return 0, kerrno.New(kerrno.BadFileDescriptor, "file not opened for write")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flags&OAppend != 0 {
		attr, err := f.node.Attr()
		if err != nil {
			return 0, err
		}
		f.cursor = int64(attr.Size)
	}
	n, err := f.node.WriteAt(f.cursor, buf)
	f.cursor += int64(n)
	return n, err
}

// ReadAt and WriteAt bypass the cursor entirely, per spec §4.3's
// explicit-offset contract.
func (f *File) ReadAt(offset int64, buf []byte) (int, error) {
	if f.flags&ORead == 0 {
		return 0, kerrno.New(kerrno.BadFileDescriptor, "file not opened for read")
	}
	return f.node.ReadAt(offset, buf)
}

func (f *File) WriteAt(offset int64, buf []byte) (int, error) {
	if f.flags&OWrite == 0 {
		return 0, kerrno.New(kerrno.BadFileDescriptor, "file not opened for write")
	}
	return f.node.WriteAt(offset, buf)
}

// Seek repositions the cursor; whence follows io.Seeker's convention
// (0=start, 1=current, 2=end) without importing io just for the three
// constants callers already know.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case 0:
		f.cursor = offset
	case 1:
		f.cursor += offset
	case 2:
		attr, err := f.node.Attr()
		if err != nil {
			return 0, err
		}
		f.cursor = int64(attr.Size) + offset
	default:
		return 0, kerrno.New(kerrno.InvalidInput, "seek: invalid whence %d", whence)
	}
	if f.cursor < 0 {
		f.cursor = 0
		return 0, kerrno.New(kerrno.InvalidInput, "seek: negative resulting offset")
	}
	return f.cursor, nil
}

func (f *File) Node() Node { return f.node }

// Poll reports the readable/writable pair spec §4.3's event façade
// polls. This package has no underlying wait primitive of its own;
// every node is always ready, so Poll simply reflects the file's own
// open flags.
func (f *File) Poll() (readable, writable bool) {
	return f.flags&ORead != 0, f.flags&OWrite != 0
}
