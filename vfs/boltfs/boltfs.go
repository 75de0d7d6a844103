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

// Package boltfs is a durable vfs.Node backend over a single
// go.etcd.io/bbolt database file: every directory is a nested bucket,
// regular files live in that bucket's reserved "files" sub-bucket
// (name -> content), and symlinks live in its reserved "links"
// sub-bucket (name -> target). A reserved "perms" sub-bucket records
// the permission bits for every entry by name, directories included.
//
// Directory entries named "files", "links", or "perms" are reserved
// by this layout and cannot be created through this backend.
package boltfs

import (
	"encoding/binary"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/vfs"
)

const rootBucket = "root"

var reservedNames = map[string]bool{"files": true, "links": true, "perms": true}

// FS owns the underlying database handle; Close must be called when
// the filesystem is unmounted for good.
type FS struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt-backed filesystem at
// path and returns it wrapped as a mountable vfs.FileSystem alongside
// the handle needed to close it.
func Open(path string) (*vfs.FileSystem, *FS, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, nil, kerrno.New(kerrno.InvalidInput, "boltfs: open %s: %v", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, nil, kerrno.New(kerrno.InvalidInput, "boltfs: init %s: %v", path, err)
	}
	fs := &FS{db: db}
	root := &node{db: db, parentPath: nil, name: "", ty: vfs.Dir}
	return vfs.NewFileSystem(root), fs, nil
}

// Close releases the database handle.
func (f *FS) Close() error { return f.db.Close() }

// node implements vfs.Node. parentPath is the bucket path (relative
// to rootBucket) of the directory this entry lives in; name is empty
// only for the filesystem root itself.
type node struct {
	db         *bbolt.DB
	parentPath []string
	name       string
	ty         vfs.NodeType
}

func (n *node) isRoot() bool { return n.name == "" }

// ownPath is the bucket path to this node itself, meaningful only
// when ty is Dir.
func (n *node) ownPath() []string {
	if n.isRoot() {
		return n.parentPath
	}
	return append(append([]string{}, n.parentPath...), n.name)
}

func navigate(tx *bbolt.Tx, path []string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(rootBucket))
	for _, p := range path {
		if b == nil {
			return nil, kerrno.New(kerrno.NotFound, "boltfs: %q not found", p)
		}
		b = b.Bucket([]byte(p))
	}
	if b == nil {
		return nil, kerrno.New(kerrno.NotFound, "boltfs: path not found")
	}
	return b, nil
}

func encodePerm(p vfs.Perm) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(p))
	return buf
}

func decodePerm(buf []byte, fallback vfs.Perm) vfs.Perm {
	if len(buf) != 2 {
		return fallback
	}
	return vfs.Perm(binary.LittleEndian.Uint16(buf))
}

func (n *node) Attr() (vfs.Attr, error) {
	var attr vfs.Attr
	err := n.db.View(func(tx *bbolt.Tx) error {
		if n.isRoot() {
			b, err := navigate(tx, n.ownPath())
			if err != nil {
				return err
			}
			attr = vfs.Attr{Perm: vfs.DefaultDirPerm, Type: vfs.Dir, Size: uint64(countChildren(b))}
			return nil
		}
		parent, err := navigate(tx, n.parentPath)
		if err != nil {
			return err
		}
		perm := fallbackPerm(n.ty)
		if pb := parent.Bucket([]byte("perms")); pb != nil {
			perm = decodePerm(pb.Get([]byte(n.name)), perm)
		}
		switch n.ty {
		case vfs.Dir:
			self := parent.Bucket([]byte(n.name))
			if self == nil {
				return kerrno.New(kerrno.NotFound, "boltfs: %q not found", n.name)
			}
			attr = vfs.Attr{Perm: perm, Type: vfs.Dir, Size: uint64(countChildren(self))}
		case vfs.File:
			files := parent.Bucket([]byte("files"))
			var data []byte
			if files != nil {
				data = files.Get([]byte(n.name))
			}
			attr = vfs.Attr{Perm: perm, Type: vfs.File, Size: uint64(len(data)), Blocks: uint64((len(data) + 511) / 512)}
		case vfs.SymLink:
			links := parent.Bucket([]byte("links"))
			var target []byte
			if links != nil {
				target = links.Get([]byte(n.name))
			}
			attr = vfs.Attr{Perm: perm, Type: vfs.SymLink, Size: uint64(len(target))}
		}
		return nil
	})
	return attr, err
}

func fallbackPerm(ty vfs.NodeType) vfs.Perm {
	if ty == vfs.Dir {
		return vfs.DefaultDirPerm
	}
	return vfs.DefaultFilePerm
}

func countChildren(b *bbolt.Bucket) int {
	count := 0
	if files := b.Bucket([]byte("files")); files != nil {
		count += files.Stats().KeyN
	}
	if links := b.Bucket([]byte("links")); links != nil {
		count += links.Stats().KeyN
	}
	_ = b.ForEach(func(k, v []byte) error {
		if v == nil && !reservedNames[string(k)] {
			count++
		}
		return nil
	})
	return count
}

func (n *node) ReadAt(offset int64, buf []byte) (int, error) {
	if n.ty != vfs.File {
		return 0, wrongType(n.ty)
	}
	count := 0
	err := n.db.View(func(tx *bbolt.Tx) error {
		parent, err := navigate(tx, n.parentPath)
		if err != nil {
			return err
		}
		files := parent.Bucket([]byte("files"))
		if files == nil {
			return nil
		}
		data := files.Get([]byte(n.name))
		if offset < 0 || offset >= int64(len(data)) {
			return nil
		}
		count = copy(buf, data[offset:])
		return nil
	})
	return count, err
}

func (n *node) WriteAt(offset int64, buf []byte) (int, error) {
	if n.ty != vfs.File {
		return 0, wrongType(n.ty)
	}
	count := 0
	err := n.db.Update(func(tx *bbolt.Tx) error {
		parent, err := navigate(tx, n.parentPath)
		if err != nil {
			return err
		}
		files, err := parent.CreateBucketIfNotExists([]byte("files"))
		if err != nil {
			return err
		}
		data := append([]byte(nil), files.Get([]byte(n.name))...)
		end := offset + int64(len(buf))
		if end > int64(len(data)) {
			grown := make([]byte, end)
			copy(grown, data)
			data = grown
		}
		count = copy(data[offset:end], buf)
		return files.Put([]byte(n.name), data)
	})
	return count, err
}

func (n *node) Truncate(size int64) error {
	if n.ty != vfs.File {
		return wrongType(n.ty)
	}
	return n.db.Update(func(tx *bbolt.Tx) error {
		parent, err := navigate(tx, n.parentPath)
		if err != nil {
			return err
		}
		files, err := parent.CreateBucketIfNotExists([]byte("files"))
		if err != nil {
			return err
		}
		data := append([]byte(nil), files.Get([]byte(n.name))...)
		if size <= int64(len(data)) {
			data = data[:size]
		} else {
			grown := make([]byte, size)
			copy(grown, data)
			data = grown
		}
		return files.Put([]byte(n.name), data)
	})
}

func (n *node) Lookup(name string) (vfs.Node, error) {
	if n.ty != vfs.Dir {
		return nil, wrongType(n.ty)
	}
	var result *node
	err := n.db.View(func(tx *bbolt.Tx) error {
		b, err := navigate(tx, n.ownPath())
		if err != nil {
			return err
		}
		if sub := b.Bucket([]byte(name)); sub != nil {
			result = &node{db: n.db, parentPath: n.ownPath(), name: name, ty: vfs.Dir}
			return nil
		}
		if files := b.Bucket([]byte("files")); files != nil && files.Get([]byte(name)) != nil {
			result = &node{db: n.db, parentPath: n.ownPath(), name: name, ty: vfs.File}
			return nil
		}
		if links := b.Bucket([]byte("links")); links != nil && links.Get([]byte(name)) != nil {
			result = &node{db: n.db, parentPath: n.ownPath(), name: name, ty: vfs.SymLink}
			return nil
		}
		return kerrno.New(kerrno.NotFound, "boltfs: %q not found", name)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (n *node) Create(name string, ty vfs.NodeType, perm vfs.Perm, target string) (vfs.Node, error) {
	if n.ty != vfs.Dir {
		return nil, wrongType(n.ty)
	}
	if reservedNames[name] {
		return nil, kerrno.New(kerrno.InvalidInput, "boltfs: %q is a reserved name", name)
	}
	err := n.db.Update(func(tx *bbolt.Tx) error {
		b, err := navigate(tx, n.ownPath())
		if err != nil {
			return err
		}
		if b.Bucket([]byte(name)) != nil {
			return kerrno.New(kerrno.AlreadyExists, "boltfs: %q already exists", name)
		}
		if files := b.Bucket([]byte("files")); files != nil && files.Get([]byte(name)) != nil {
			return kerrno.New(kerrno.AlreadyExists, "boltfs: %q already exists", name)
		}
		if links := b.Bucket([]byte("links")); links != nil && links.Get([]byte(name)) != nil {
			return kerrno.New(kerrno.AlreadyExists, "boltfs: %q already exists", name)
		}
		switch ty {
		case vfs.Dir:
			if _, err := b.CreateBucket([]byte(name)); err != nil {
				return err
			}
		case vfs.File:
			files, err := b.CreateBucketIfNotExists([]byte("files"))
			if err != nil {
				return err
			}
			if err := files.Put([]byte(name), []byte{}); err != nil {
				return err
			}
		case vfs.SymLink:
			links, err := b.CreateBucketIfNotExists([]byte("links"))
			if err != nil {
				return err
			}
			if err := links.Put([]byte(name), []byte(target)); err != nil {
				return err
			}
		default:
			return kerrno.New(kerrno.InvalidInput, "boltfs: unknown node type %d", ty)
		}
		perms, err := b.CreateBucketIfNotExists([]byte("perms"))
		if err != nil {
			return err
		}
		return perms.Put([]byte(name), encodePerm(perm))
	})
	if err != nil {
		return nil, err
	}
	return &node{db: n.db, parentPath: n.ownPath(), name: name, ty: ty}, nil
}

func (n *node) Remove(name string) error {
	if n.ty != vfs.Dir {
		return wrongType(n.ty)
	}
	return n.db.Update(func(tx *bbolt.Tx) error {
		b, err := navigate(tx, n.ownPath())
		if err != nil {
			return err
		}
		if sub := b.Bucket([]byte(name)); sub != nil {
			if countChildren(sub) > 0 {
				return kerrno.New(kerrno.NotEmpty, "boltfs: %q is not empty", name)
			}
			if err := b.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		} else if files := b.Bucket([]byte("files")); files != nil && files.Get([]byte(name)) != nil {
			if err := files.Delete([]byte(name)); err != nil {
				return err
			}
		} else if links := b.Bucket([]byte("links")); links != nil && links.Get([]byte(name)) != nil {
			if err := links.Delete([]byte(name)); err != nil {
				return err
			}
		} else {
			return kerrno.New(kerrno.NotFound, "boltfs: %q not found", name)
		}
		if perms := b.Bucket([]byte("perms")); perms != nil {
			_ = perms.Delete([]byte(name))
		}
		return nil
	})
}

func (n *node) ReadDir(startIdx int) ([]vfs.DirEntry, error) {
	if n.ty != vfs.Dir {
		return nil, wrongType(n.ty)
	}
	var entries []vfs.DirEntry
	err := n.db.View(func(tx *bbolt.Tx) error {
		b, err := navigate(tx, n.ownPath())
		if err != nil {
			return err
		}
		_ = b.ForEach(func(k, v []byte) error {
			if v == nil && !reservedNames[string(k)] {
				entries = append(entries, vfs.DirEntry{Name: string(k), Type: vfs.Dir})
			}
			return nil
		})
		if files := b.Bucket([]byte("files")); files != nil {
			_ = files.ForEach(func(k, v []byte) error {
				entries = append(entries, vfs.DirEntry{Name: string(k), Type: vfs.File})
				return nil
			})
		}
		if links := b.Bucket([]byte("links")); links != nil {
			_ = links.ForEach(func(k, v []byte) error {
				entries = append(entries, vfs.DirEntry{Name: string(k), Type: vfs.SymLink})
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if startIdx >= len(entries) {
		return nil, nil
	}
	return entries[startIdx:], nil
}

func (n *node) Readlink() (string, error) {
	if n.ty != vfs.SymLink {
		return "", kerrno.New(kerrno.InvalidInput, "boltfs: not a symlink")
	}
	var target string
	err := n.db.View(func(tx *bbolt.Tx) error {
		parent, err := navigate(tx, n.parentPath)
		if err != nil {
			return err
		}
		links := parent.Bucket([]byte("links"))
		if links == nil {
			return kerrno.New(kerrno.NotFound, "boltfs: symlink vanished")
		}
		target = string(links.Get([]byte(n.name)))
		return nil
	})
	return target, err
}

func wrongType(ty vfs.NodeType) error {
	if ty == vfs.Dir {
		return kerrno.New(kerrno.IsADirectory, "is a directory")
	}
	return kerrno.New(kerrno.NotADirectory, "not a directory")
}

var _ vfs.Node = (*node)(nil)
