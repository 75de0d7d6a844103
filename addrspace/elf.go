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

package addrspace

import "github.com/gokern/gokern/pagetable"

// ProgramHeader is the subset of an ELF PT_LOAD segment this package
// needs; parsing the ELF container format itself is out of scope
// (spec.md §1 names the ELF parser as an external collaborator), so
// the caller supplies an already-decoded header list.
type ProgramHeader struct {
	VAddr              uintptr
	MemSize, FileSize  uintptr
	Data               []byte // FileSize bytes read from the segment's file offset
	Read, Write, Exec  bool
}

const guardPageSize = pagetable.PageSize

// LoadResult reports the three values spec §4.4's ELF load hands back
// to the process core: the entry point, the initial user-stack
// bottom, and the heap base.
type LoadResult struct {
	Entry         uintptr
	StackBottom   uintptr
	HeapBase      uintptr
}

// LoadELF implements spec §4.4's ELF load: iterate PT_LOAD segments,
// allocating and copying into a new region per segment with
// permissions matching PF_R/PF_W/PF_X, then lays out the heap (above
// the highest segment plus a guard page) and a lazily-populated user
// stack.
func (as *AddressSpace) LoadELF(entry uintptr, headers []ProgramHeader, stackTop, stackSize uintptr) (LoadResult, error) {
	var maxEnd uintptr
	for _, ph := range headers {
		flags := pagetable.User
		if ph.Read {
			flags |= pagetable.Read
		}
		if ph.Write {
			flags |= pagetable.Write
		}
		if ph.Exec {
			flags |= pagetable.Exec
		}
		if _, err := as.MapRegion(pageFloor(ph.VAddr), alignSizeUp(ph.MemSize+(ph.VAddr-pageFloor(ph.VAddr))), flags, ph.Data); err != nil {
			return LoadResult{}, err
		}
		if end := ph.VAddr + ph.MemSize; end > maxEnd {
			maxEnd = end
		}
	}

	heapBase := alignSizeUp(maxEnd) + guardPageSize
	stackBottom := stackTop - alignSizeUp(stackSize)
	if _, err := as.MapLazyRegion(stackBottom, alignSizeUp(stackSize), pagetable.Read|pagetable.Write|pagetable.User); err != nil {
		return LoadResult{}, err
	}

	as.Heap = heapBase
	return LoadResult{Entry: entry, StackBottom: stackBottom, HeapBase: heapBase}, nil
}

func pageFloor(v uintptr) uintptr { return v &^ (pagetable.PageSize - 1) }
