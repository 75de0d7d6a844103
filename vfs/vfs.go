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
	"strings"
	"sync"

	"github.com/gokern/gokern/kerrno"
)

// FileSystem pairs a root Node with nothing else; separate
// filesystems are joined into one namespace by VFS.Mount. There is no
// implicit nesting: every mounted filesystem is explicit.
type FileSystem struct {
	root Node
}

// NewFileSystem wraps an already-constructed root node (e.g. a
// boltfs root) as a mountable filesystem.
func NewFileSystem(root Node) *FileSystem { return &FileSystem{root: root} }

// VFS is spec §4.3's namespace: one root filesystem plus a table of
// explicit mount points layered on top of it.
type VFS struct {
	mu     sync.RWMutex
	rootFS *FileSystem
	mounts map[string]*FileSystem // canonical absolute path -> mounted fs
}

// New creates a namespace rooted at root.
func New(root *FileSystem) *VFS {
	return &VFS{rootFS: root, mounts: make(map[string]*FileSystem)}
}

// Mount grafts fs's root onto the namespace at the already-resolved
// absolute path at. The mount point directory must exist in the
// parent filesystem.
func (v *VFS) Mount(at string, fs *FileSystem) error {
	at = cleanAbs(at)
	if _, err := v.lookupPath(at); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.mounts[at]; exists {
		return kerrno.New(kerrno.AlreadyExists, "mount: %q is already a mount point", at)
	}
	v.mounts[at] = fs
	return nil
}

// Unmount removes the mount point at at, which must have no
// sub-mounts layered on top of it.
func (v *VFS) Unmount(at string) error {
	at = cleanAbs(at)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.mounts[at]; !ok {
		return kerrno.New(kerrno.NotFound, "unmount: %q is not a mount point", at)
	}
	delete(v.mounts, at)
	return nil
}

func (v *VFS) mountAt(path string) (*FileSystem, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	fs, ok := v.mounts[path]
	return fs, ok
}

// isMountPoint reports whether path (already canonical) names a
// mount point, used by Remove to refuse removing one (Busy).
func (v *VFS) isMountPoint(path string) bool {
	_, ok := v.mountAt(path)
	return ok
}

func cleanAbs(path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	parts := splitClean(path)
	return "/" + strings.Join(parts, "/")
}

func splitClean(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

const maxSymlinkFollows = 40

// resolved is what path walking produces: the final node, its
// canonical absolute path, and the node's parent directory plus its
// own name within that parent (for Create/Remove/Rename).
type resolved struct {
	node       Node
	path       string
	parent     Node
	parentPath string
	name       string
}

// lookupPath walks an already-canonical absolute path from the
// namespace root, following "..", mount points, and symlinks exactly
// as spec §4.3 describes.
func (v *VFS) lookupPath(path string) (*resolved, error) {
	return v.lookupFrom("/", v.rootFS.root, splitClean(path))
}

// resolve is the general entry point: cwd is an already-canonical
// absolute directory path used when rel is not itself absolute.
func (v *VFS) resolve(cwd, rel string) (*resolved, error) {
	if strings.HasPrefix(rel, "/") {
		return v.lookupPath(rel)
	}
	cwd = cleanAbs(cwd)
	joined := cwd
	if joined != "/" {
		joined += "/"
	}
	return v.lookupPath(joined + rel)
}

func (v *VFS) lookupFrom(basePath string, base Node, components []string) (*resolved, error) {
	type frame struct {
		node Node
		path string
	}
	stack := []frame{{base, basePath}}
	follows := 0

	for i := 0; i < len(components); i++ {
		comp := components[i]
		cur := stack[len(stack)-1]

		switch comp {
		case ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		attr, err := cur.node.Attr()
		if err != nil {
			return nil, err
		}
		if attr.Type != Dir {
			return nil, kerrno.New(kerrno.NotADirectory, "%s: not a directory", cur.path)
		}

		child, err := cur.node.Lookup(comp)
		if err != nil {
			return nil, err
		}
		childPath := joinPath(cur.path, comp)

		if fs, ok := v.mountAt(childPath); ok {
			child = fs.root
		}

		childAttr, err := child.Attr()
		if err != nil {
			return nil, err
		}
		if childAttr.Type == SymLink {
			follows++
			if follows > maxSymlinkFollows {
				return nil, kerrno.New(kerrno.Loop, "%s: too many symbolic links", childPath)
			}
			target, err := child.Readlink()
			if err != nil {
				return nil, err
			}
			var rest []string
			if strings.HasPrefix(target, "/") {
				stack = []frame{{v.rootFS.root, "/"}}
				rest = splitClean(target)
			} else {
				rest = splitClean(target)
			}
			components = append(append([]string{}, rest...), components[i+1:]...)
			i = -1
			continue
		}

		stack = append(stack, frame{child, childPath})
	}

	top := stack[len(stack)-1]
	var parent Node
	parentPath := top.path
	name := ""
	if len(stack) > 1 {
		parent = stack[len(stack)-2].node
		parentPath = stack[len(stack)-2].path
		name = lastComponent(top.path)
	}
	return &resolved{node: top.node, path: top.path, parent: parent, parentPath: parentPath, name: name}, nil
}

func joinPath(base, comp string) string {
	if base == "/" {
		return "/" + comp
	}
	return base + "/" + comp
}

func lastComponent(path string) string {
	parts := splitClean(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Lookup implements spec §4.3's lookup contract.
func (v *VFS) Lookup(cwd, path string) (Node, error) {
	r, err := v.resolve(cwd, path)
	if err != nil {
		return nil, err
	}
	return r.node, nil
}

// Attr is a small convenience wrapper used by callers that only want
// the stat result for a path.
func (v *VFS) Attr(cwd, path string) (Attr, error) {
	n, err := v.Lookup(cwd, path)
	if err != nil {
		return Attr{}, err
	}
	return n.Attr()
}

// Create implements spec §4.3's create(parent, name, type, mode),
// addressed here by full path rather than a pre-resolved parent
// handle: the parent directory is resolved from cwd/path's directory
// component and name is its final component.
func (v *VFS) Create(cwd, path string, ty NodeType, perm Perm, target string) (Node, error) {
	dir, name, err := v.splitParent(cwd, path)
	if err != nil {
		return nil, err
	}
	return dir.Create(name, ty, perm, target)
}

func (v *VFS) splitParent(cwd, path string) (Node, string, error) {
	dirPath, name, err := v.splitDirName(cwd, path)
	if err != nil {
		return nil, "", err
	}
	if name == "" {
		return nil, "", kerrno.New(kerrno.InvalidInput, "path has no final component")
	}
	r, err := v.lookupPath(dirPath)
	if err != nil {
		return nil, "", err
	}
	return r.node, name, nil
}

// Remove implements spec §4.3's remove(parent, name, expect_dir).
func (v *VFS) Remove(cwd, path string, expectDir bool) error {
	canonical, err := v.canonicalPath(cwd, path)
	if err != nil {
		return err
	}
	if v.isMountPoint(canonical) {
		return kerrno.New(kerrno.Busy, "%s: is a mount point", canonical)
	}
	r, err := v.resolve(cwd, path)
	if err != nil {
		return err
	}
	attr, err := r.node.Attr()
	if err != nil {
		return err
	}
	if expectDir && attr.Type != Dir {
		return kerrno.New(kerrno.NotADirectory, "%s: not a directory", canonical)
	}
	if !expectDir && attr.Type == Dir {
		return kerrno.New(kerrno.IsADirectory, "%s: is a directory", canonical)
	}
	if r.parent == nil {
		return kerrno.New(kerrno.PermissionDenied, "cannot remove the namespace root")
	}
	return r.parent.Remove(r.name)
}

func (v *VFS) canonicalPath(cwd, path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return cleanAbs(path), nil
	}
	return cleanAbs(cleanAbs(cwd) + "/" + path), nil
}

// Rename implements spec §4.3's rename: atomic within one filesystem,
// refused with CrossDevice across mount boundaries.
func (v *VFS) Rename(cwd, srcPath, dstPath string) error {
	srcR, err := v.resolve(cwd, srcPath)
	if err != nil {
		return err
	}
	srcDirPath, _, err := v.splitDirName(cwd, srcPath)
	if err != nil {
		return err
	}
	dstDirPath, dstName, err := v.splitDirName(cwd, dstPath)
	if err != nil {
		return err
	}
	if srcDirPath != dstDirPath {
		srcFS := v.fsOwning(srcDirPath)
		dstFS := v.fsOwning(dstDirPath)
		if srcFS != dstFS {
			return kerrno.New(kerrno.CrossDevice, "rename: %s and %s are on different filesystems", srcPath, dstPath)
		}
	}
	dstR, err := v.resolve(cwd, dstDirPath)
	if err != nil {
		return err
	}
	if _, err := dstR.node.Lookup(dstName); err == nil {
		if err := dstR.node.Remove(dstName); err != nil {
			return err
		}
	}
	data, attr, err := snapshot(srcR.node)
	if err != nil {
		return err
	}
	clone, err := dstR.node.Create(dstName, attr.Type, attr.Perm, "")
	if err != nil {
		return err
	}
	if attr.Type == File {
		if _, err := clone.WriteAt(0, data); err != nil {
			return err
		}
	}
	return srcR.parent.Remove(srcR.name)
}

func snapshot(n Node) ([]byte, Attr, error) {
	attr, err := n.Attr()
	if err != nil {
		return nil, Attr{}, err
	}
	if attr.Type != File {
		return nil, attr, nil
	}
	buf := make([]byte, attr.Size)
	if _, err := n.ReadAt(0, buf); err != nil {
		return nil, attr, err
	}
	return buf, attr, nil
}

func (v *VFS) splitDirName(cwd, path string) (dirPath, name string, err error) {
	abs, err := v.canonicalPath(cwd, path)
	if err != nil {
		return "", "", err
	}
	parts := splitClean(abs)
	if len(parts) == 0 {
		return "", "", kerrno.New(kerrno.InvalidInput, "path has no final component")
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// fsOwning returns which mounted (or root) filesystem instance owns
// dirPath, used by Rename's cross-device check.
func (v *VFS) fsOwning(dirPath string) *FileSystem {
	v.mu.RLock()
	defer v.mu.RUnlock()
	best := ""
	owner := v.rootFS
	for mountPath, fs := range v.mounts {
		if strings.HasPrefix(dirPath+"/", mountPath+"/") && len(mountPath) > len(best) {
			best = mountPath
			owner = fs
		}
	}
	return owner
}

// ReadDir implements spec §4.3's directory listing.
func (v *VFS) ReadDir(cwd, path string, startIdx int) ([]DirEntry, error) {
	n, err := v.Lookup(cwd, path)
	if err != nil {
		return nil, err
	}
	entries, err := n.ReadDir(startIdx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
