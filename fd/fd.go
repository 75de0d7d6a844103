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

// Package fd implements spec §4.3's per-process file descriptor
// table: a fixed-capacity array of slots shared under one lock by
// every task of a process, each slot either empty or holding a
// reference-counted *vfs.File.
package fd

import (
	"sync"

	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/vfs"
)

type slot struct {
	file    *vfs.File
	refs    int
	cloexec bool
}

// Table is the per-process FD table. The zero value is not usable;
// construct with New.
type Table struct {
	mu    sync.Mutex
	slots []*slot
}

// New creates a table with the given fixed capacity (spec §4.3's
// "default bound configurable per process").
func New(capacity int) *Table {
	return &Table{slots: make([]*slot, capacity)}
}

// Alloc implements alloc_fd: install file in the smallest free index
// and return it.
func (t *Table) Alloc(file *vfs.File) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = &slot{file: file, refs: 1}
			return i, nil
		}
	}
	return -1, kerrno.New(kerrno.ResourceExhausted, "fd table: no free slots")
}

// Get returns the file-like installed at fd, or BadFileDescriptor if
// the slot is empty or out of range.
func (t *Table) Get(fd int) (*vfs.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return nil, err
	}
	return s.file, nil
}

func (t *Table) at(fd int) (*slot, error) {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, kerrno.New(kerrno.BadFileDescriptor, "fd %d is not open", fd)
	}
	return t.slots[fd], nil
}

// Dup implements dup: allocate another slot pointing at the same
// file-like (shared cursor, per real dup() semantics), returning the
// new slot's index.
func (t *Table) Dup(fd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return -1, err
	}
	for i, slt := range t.slots {
		if slt == nil {
			s.refs++
			t.slots[i] = s
			return i, nil
		}
	}
	return -1, kerrno.New(kerrno.ResourceExhausted, "fd table: no free slots")
}

// DupTo implements dup_to(n): atomically closes slot n if occupied
// and installs fd's file-like there instead.
func (t *Table) DupTo(fd, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(t.slots) {
		return kerrno.New(kerrno.BadFileDescriptor, "fd %d out of range", n)
	}
	if existing := t.slots[n]; existing != nil && existing != s {
		existing.refs--
	}
	s.refs++
	t.slots[n] = s
	return nil
}

// Close implements close: drops the slot's reference; once no slot
// references the file-like any longer, it is eligible for collection
// (this package keeps no finalizer; Go's GC reclaims the *vfs.File
// once this was its last reference, there being no device-side
// resource to release explicitly at this layer).
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return err
	}
	s.refs--
	t.slots[fd] = nil
	return nil
}

// SetCloseOnExec sets or clears fd's per-descriptor close-on-exec flag
// (spec §4.3's "a per-descriptor flags byte"); it does not affect
// slots sharing the same underlying file-like via dup.
func (t *Table) SetCloseOnExec(fd int, cloexec bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return err
	}
	s.cloexec = cloexec
	return nil
}

// IsCloseOnExec reports fd's close-on-exec flag.
func (t *Table) IsCloseOnExec(fd int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return false, err
	}
	return s.cloexec, nil
}

// CloseExecFDs drops every slot whose close-on-exec flag is set,
// implementing the "exec keeps entries whose close-on-exec flag is
// clear" half of spec §3's FD-table ownership summary. The table
// itself is not replaced; exec shares the same *Table, just purged.
func (t *Table) CloseExecFDs() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s != nil && s.cloexec {
			s.refs--
			t.slots[i] = nil
		}
	}
}

// Clone returns a new table of the same capacity with every occupied
// slot duplicated (same underlying file-like, incremented ref count,
// same close-on-exec flag), the fork-time "independent table, shared
// files" semantics spec §3's ownership summary describes for a clone
// that does not share FILES.
func (t *Table) Clone() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &Table{slots: make([]*slot, len(t.slots))}
	for i, s := range t.slots {
		if s == nil {
			continue
		}
		s.refs++
		out.slots[i] = s
	}
	return out
}

// RefCount reports how many slots currently reference fd's
// file-like, for tests and diagnostics.
func (t *Table) RefCount(fd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.at(fd)
	if err != nil {
		return 0, err
	}
	return s.refs, nil
}
