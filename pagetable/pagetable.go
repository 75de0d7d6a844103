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

// Package pagetable implements spec §2's L1 page table: multi-level
// translation expressed as a sparse per-page entry map (there is no
// real MMU beneath this simulation, so a radix-style walk over fixed
// 4 KiB pages stands in for the architecture page-table formats the
// original targets), plus region map/unmap/query/protect built on top
// of it.
package pagetable

import (
	"github.com/gokern/gokern/kerrno"
)

// PageSize is the translation granule this package works in (spec
// §4.4 names 4 KiB as the baseline page size).
const PageSize = 4096

// Flags is a permission bitset, matching spec §3's region attributes
// (READ, WRITE, EXECUTE, USER).
type Flags uint8

const (
	Read Flags = 1 << iota
	Write
	Exec
	User
)

type entry struct {
	phys  uintptr
	flags Flags
}

// PageTable is a multi-level translation structure collapsed to a
// single sparse map keyed by virtual page number; Map/Unmap/Query
// operate at page granularity exactly as a real multi-level walker
// would, just without the intermediate directory levels to walk.
type PageTable struct {
	entries map[uintptr]entry
}

// New constructs an empty page table with no mappings.
func New() *PageTable {
	return &PageTable{entries: make(map[uintptr]entry)}
}

func pageOf(addr uintptr) uintptr { return addr &^ (PageSize - 1) }

func checkPageAligned(addr uintptr) error {
	if addr%PageSize != 0 {
		return kerrno.New(kerrno.InvalidInput, "address %#x is not page-aligned", addr)
	}
	return nil
}

// MapRegion installs translations for every page in [virt, virt+size)
// to the correspondingly offset physical pages starting at phys, all
// carrying flags. virt, phys and size must be page-aligned; mapping
// over an already-mapped page returns AlreadyExists and leaves the
// table unchanged ahead of the conflicting page (callers that want
// replace-in-place semantics call UnmapRegion first, matching the
// region-splitting discipline addrspace's mmap uses).
func (pt *PageTable) MapRegion(virt, phys, size uintptr, flags Flags) error {
	if err := checkPageAligned(virt); err != nil {
		return err
	}
	if err := checkPageAligned(phys); err != nil {
		return err
	}
	if size%PageSize != 0 {
		return kerrno.New(kerrno.InvalidInput, "region size %#x is not page-aligned", size)
	}
	for off := uintptr(0); off < size; off += PageSize {
		if _, exists := pt.entries[virt+off]; exists {
			return kerrno.New(kerrno.AlreadyExists, "virtual page %#x already mapped", virt+off)
		}
	}
	for off := uintptr(0); off < size; off += PageSize {
		pt.entries[virt+off] = entry{phys: phys + off, flags: flags}
	}
	return nil
}

// UnmapRegion removes translations for every page in [virt, virt+size).
// Unmapping a page with no translation is not an error (idempotent,
// per spec §8's idempotence property for region teardown).
func (pt *PageTable) UnmapRegion(virt, size uintptr) error {
	if err := checkPageAligned(virt); err != nil {
		return err
	}
	for off := uintptr(0); off < size; off += PageSize {
		delete(pt.entries, virt+off)
	}
	return nil
}

// Query translates a virtual address, returning its physical address
// and flags, or NotFound if no region covers it (spec §8 invariant 3:
// query succeeds iff some region covers the address).
func (pt *PageTable) Query(virt uintptr) (phys uintptr, flags Flags, err error) {
	page := pageOf(virt)
	e, ok := pt.entries[page]
	if !ok {
		return 0, 0, kerrno.New(kerrno.NotFound, "virtual address %#x is not mapped", virt)
	}
	return e.phys + (virt - page), e.flags, nil
}

// Protect changes the flags of every already-mapped page in
// [virt, virt+size), leaving their physical translations untouched.
// A page in the range with no mapping is a NotFound error and aborts
// before any flags are changed.
func (pt *PageTable) Protect(virt, size uintptr, flags Flags) error {
	if err := checkPageAligned(virt); err != nil {
		return err
	}
	for off := uintptr(0); off < size; off += PageSize {
		if _, ok := pt.entries[virt+off]; !ok {
			return kerrno.New(kerrno.NotFound, "virtual page %#x is not mapped", virt+off)
		}
	}
	for off := uintptr(0); off < size; off += PageSize {
		e := pt.entries[virt+off]
		e.flags = flags
		pt.entries[virt+off] = e
	}
	return nil
}

// Clone deep-copies every entry into a fresh page table: the clone's
// mappings are independent of the source's from this point on,
// matching physical pages until either side changes its own
// translations. addrspace's fork builds its own table and does not
// call Clone.
func (pt *PageTable) Clone() *PageTable {
	n := New()
	for k, v := range pt.entries {
		n.entries[k] = v
	}
	return n
}

// MappedPageCount reports how many pages currently have a
// translation, for tests and diagnostics.
func (pt *PageTable) MappedPageCount() int { return len(pt.entries) }
