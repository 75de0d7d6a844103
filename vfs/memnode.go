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
	"sort"
	"sync"

	"github.com/gokern/gokern/kerrno"
)

// memNode is a plain in-memory inode: a byte slice for a file, a
// child map for a directory (ReadDir lists it sorted by name), or a
// target string for a symlink. There is no disk block cache since there is no backing
// device to cache here.
type memNode struct {
	mu       sync.RWMutex
	ty       NodeType
	perm     Perm
	data     []byte
	target   string
	children map[string]*memNode
}

func newMemDir(perm Perm) *memNode {
	return &memNode{ty: Dir, perm: perm, children: make(map[string]*memNode)}
}

func newMemFile(perm Perm) *memNode {
	return &memNode{ty: File, perm: perm}
}

func newMemSymlink(target string) *memNode {
	return &memNode{ty: SymLink, perm: DefaultFilePerm, target: target}
}

// NewMemFS creates an in-memory FileSystem with an empty root
// directory, suitable for tests and for mounting a scratch/tmp
// filesystem anywhere in the tree.
func NewMemFS() *FileSystem {
	return &FileSystem{root: newMemDir(DefaultDirPerm)}
}

func (n *memNode) Attr() (Attr, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	size := uint64(len(n.data))
	if n.ty == Dir {
		size = uint64(len(n.children))
	}
	return Attr{Perm: n.perm, Type: n.ty, Size: size, Blocks: (size + 511) / 512}, nil
}

func (n *memNode) ReadAt(offset int64, buf []byte) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ty == Dir {
		return 0, wrongType("read_at", Dir)
	}
	if offset < 0 || offset >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

func (n *memNode) WriteAt(offset int64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ty == Dir {
		return 0, wrongType("write_at", Dir)
	}
	end := offset + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	return copy(n.data[offset:end], buf), nil
}

func (n *memNode) Truncate(size int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ty == Dir {
		return wrongType("truncate", Dir)
	}
	if size < 0 {
		return kerrno.New(kerrno.InvalidInput, "truncate: negative size")
	}
	if size <= int64(len(n.data)) {
		n.data = n.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, n.data)
	n.data = grown
	return nil
}

func (n *memNode) Lookup(name string) (Node, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ty != Dir {
		return nil, wrongType("lookup", n.ty)
	}
	child, ok := n.children[name]
	if !ok {
		return nil, kerrno.New(kerrno.NotFound, "lookup: %q not found", name)
	}
	return child, nil
}

func (n *memNode) Create(name string, ty NodeType, perm Perm, target string) (Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ty != Dir {
		return nil, wrongType("create", n.ty)
	}
	if _, exists := n.children[name]; exists {
		return nil, kerrno.New(kerrno.AlreadyExists, "create: %q already exists", name)
	}
	var child *memNode
	switch ty {
	case Dir:
		child = newMemDir(perm)
	case File:
		child = newMemFile(perm)
	case SymLink:
		child = newMemSymlink(target)
	default:
		return nil, kerrno.New(kerrno.InvalidInput, "create: unknown node type %d", ty)
	}
	n.children[name] = child
	return child, nil
}

func (n *memNode) Remove(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ty != Dir {
		return wrongType("remove", n.ty)
	}
	child, ok := n.children[name]
	if !ok {
		return kerrno.New(kerrno.NotFound, "remove: %q not found", name)
	}
	if child.ty == Dir {
		child.mu.RLock()
		empty := len(child.children) == 0
		child.mu.RUnlock()
		if !empty {
			return kerrno.New(kerrno.NotEmpty, "remove: %q is not empty", name)
		}
	}
	delete(n.children, name)
	return nil
}

func (n *memNode) ReadDir(startIdx int) ([]DirEntry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ty != Dir {
		return nil, wrongType("read_dir", n.ty)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	if startIdx >= len(names) {
		return nil, nil
	}
	entries := make([]DirEntry, 0, len(names)-startIdx)
	for _, name := range names[startIdx:] {
		entries = append(entries, DirEntry{Name: name, Type: n.children[name].ty})
	}
	return entries, nil
}

func (n *memNode) Readlink() (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ty != SymLink {
		return "", kerrno.New(kerrno.InvalidInput, "readlink: not a symlink")
	}
	return n.target, nil
}
