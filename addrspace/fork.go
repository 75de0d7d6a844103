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

import (
	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/pagetable"
)

// MapLazyRegion records a region covering [start, start+size) with no
// frames allocated up front; frames are installed one page at a time
// by HandleFault as the region is first touched (spec §4.4's "lazily
// populated" region flag).
func (as *AddressSpace) MapLazyRegion(start, size uintptr, flags pagetable.Flags) (*Region, error) {
	if !pageAlign(start) {
		return nil, kerrno.New(kerrno.InvalidInput, "region start %#x is not page-aligned", start)
	}
	size = alignSizeUp(size)
	if as.findOverlap(start, size) >= 0 {
		return nil, kerrno.New(kerrno.AlreadyExists, "region [%#x, %#x) overlaps an existing mapping", start, start+size)
	}
	r := &Region{Start: start, Size: size, Flags: flags, Lazy: true, frames: make([]uint, size/pagetable.PageSize)}
	as.insertSorted(r)
	return r, nil
}

// CloneFrom implements spec §4.4's fork: copy every user region.
// Non-CoW regions are copied eagerly (fresh frames, contents
// copied from source, installed with the original flags) exactly as
// spec.md describes. A region with CopyOnWrite set instead shares the
// source's frames read-only; the first write after the clone takes a
// page fault (see HandleFault) that performs the actual copy and
// restores the region's real flags for that single page. This is an
// additional lazy-COW behaviour, not a change to the eager contract
// for ordinary regions.
func (as *AddressSpace) CloneFrom(src *AddressSpace) error {
	for _, r := range src.Regions {
		if r.CopyOnWrite {
			if err := as.cloneShared(src, r); err != nil {
				return err
			}
			continue
		}
		data := make([]byte, 0, r.Size)
		for _, f := range r.frames {
			data = append(data, src.phys.frameBytes(f)...)
		}
		n, err := as.MapRegion(r.Start, r.Size, r.Flags, data)
		if err != nil {
			return err
		}
		n.Lazy = r.Lazy
	}
	return nil
}

// cloneShared installs the clone's PTEs pointing at the SAME physical
// frames as src, downgrading both sides to read-only, deferring the
// real copy to HandleFault on the first write to either side.
func (as *AddressSpace) cloneShared(src *AddressSpace, r *Region) error {
	roFlags := r.Flags &^ pagetable.Write
	frames := append([]uint(nil), r.frames...)
	for i, f := range frames {
		virt := r.Start + uintptr(i)*pagetable.PageSize
		if err := as.PageTable.MapRegion(virt, uintptr(f)*pagetable.PageSize, pagetable.PageSize, roFlags); err != nil {
			return err
		}
	}
	if err := src.PageTable.Protect(r.Start, r.Size, roFlags); err != nil {
		return err
	}
	r.cowPending = true
	clone := &Region{Start: r.Start, Size: r.Size, Flags: r.Flags, CopyOnWrite: true, cowPending: true, Lazy: r.Lazy, frames: frames}
	as.insertSorted(clone)
	return nil
}
