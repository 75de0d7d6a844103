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

// Package vfs implements spec §4.3's virtual filesystem core: path
// resolution over a tree of pluggable backing node implementations,
// mount points, and create/remove/rename/read/write operations. A
// concrete on-disk backing store lives in the boltfs subpackage;
// this package's own NewMemFS is the in-memory backing used by tests
// and by filesystems with no durability requirement.
package vfs

import "github.com/gokern/gokern/kerrno"

// NodeType mirrors the small set of inode kinds spec §4.3 names.
type NodeType int

const (
	File NodeType = iota
	Dir
	SymLink
)

// Perm is the owner/group/other read-write-execute permission bitset.
type Perm uint16

const (
	OwnerRead Perm = 1 << (8 - iota)
	OwnerWrite
	OwnerExec
	GroupRead
	GroupWrite
	GroupExec
	OtherRead
	OtherWrite
	OtherExec
)

// DefaultFilePerm and DefaultDirPerm are the usual 0o666/0o755
// defaults.
const (
	DefaultFilePerm Perm = 0o666
	DefaultDirPerm  Perm = 0o755
)

// Attr is a node's stat-able metadata.
type Attr struct {
	Perm   Perm
	Type   NodeType
	Size   uint64
	Blocks uint64
}

// DirEntry is one entry returned by Node.ReadDir.
type DirEntry struct {
	Name string
	Type NodeType
}

// Node is the backing-store contract every filesystem implementation
// (in-memory, boltfs, or a future block-device-backed one) satisfies:
// a single lookup-by-one-component method, not a full path resolver;
// path walking lives in this package's resolver, not in the node.
type Node interface {
	Attr() (Attr, error)
	ReadAt(offset int64, buf []byte) (int, error)
	WriteAt(offset int64, buf []byte) (int, error)
	Truncate(size int64) error
	Lookup(name string) (Node, error)
	// Create makes a new child. target is only meaningful when ty is
	// SymLink; other node kinds ignore it.
	Create(name string, ty NodeType, perm Perm, target string) (Node, error)
	Remove(name string) error
	ReadDir(startIdx int) ([]DirEntry, error)
	Readlink() (string, error)
}

func wrongType(op string, ty NodeType) error {
	if ty == Dir {
		return kerrno.New(kerrno.IsADirectory, "%s: is a directory", op)
	}
	return kerrno.New(kerrno.NotADirectory, "%s: not a directory", op)
}
