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

// Package addrspace implements spec §4.4: per-process virtual address
// spaces built from regions, backed by a page table (package
// pagetable) and physical page frames (package pagealloc). ELF
// loading consumes an already-parsed program-header list; parsing
// the ELF binary format itself is out of scope (spec.md §1 names the
// ELF parser as an external collaborator).
package addrspace

import (
	"sort"

	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/pagealloc"
	"github.com/gokern/gokern/pagetable"
)

// PhysMem is the backing byte store for every page frame this address
// space (or its siblings sharing the same PhysMem) maps; addrspace
// treats it as the "physical memory" a real kernel would manage with
// MMIO-mapped RAM. Frame N occupies bytes [N*PageSize, (N+1)*PageSize).
type PhysMem struct {
	bytes  []byte
	frames *pagealloc.Bitmap
}

// NewPhysMem creates a physical memory pool of numFrames page frames,
// all initially free.
func NewPhysMem(numFrames uint) *PhysMem {
	pm := &PhysMem{
		bytes:  make([]byte, uint64(numFrames)*pagetable.PageSize),
		frames: pagealloc.New(numFrames),
	}
	pm.frames.Insert(0, numFrames)
	return pm
}

// TotalFrames and FreeFrames expose the pool's occupancy for
// introspection callers (the daemon's /v1/mem view).
func (pm *PhysMem) TotalFrames() uint { return pm.frames.Cap() }
func (pm *PhysMem) FreeFrames() uint  { return pm.frames.FreeCount() }

func (pm *PhysMem) allocFrames(n uint) ([]uint, error) {
	frames := make([]uint, 0, n)
	for i := uint(0); i < n; i++ {
		f, ok := pm.frames.Alloc()
		if !ok {
			for _, prev := range frames {
				pm.frames.Dealloc(prev)
			}
			return nil, kerrno.New(kerrno.ResourceExhausted, "no physical page frames available")
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (pm *PhysMem) frameBytes(frame uint) []byte {
	off := uint64(frame) * pagetable.PageSize
	return pm.bytes[off : off+pagetable.PageSize]
}

// FrameAt returns the page-sized byte slice backing the physical
// address paddr, for tests and diagnostics that need to inspect raw
// frame contents directly.
func (pm *PhysMem) FrameAt(paddr uintptr) []byte {
	frame := uint(paddr / pagetable.PageSize)
	return pm.frameBytes(frame)
}

// Region is spec §3's address-space region: a page-aligned virtual
// span with uniform permissions, its backing frames, and the flags
// controlling lazy population / copy-on-write fork behaviour. Flags
// is the region's real, intended permission set; while cowPending is
// true the installed PTEs are temporarily downgraded to read-only and
// HandleFault restores Flags on the copied page once the write fault
// resolves.
type Region struct {
	Start, Size uintptr
	Flags       pagetable.Flags
	Lazy        bool
	CopyOnWrite bool
	cowPending  bool
	frames      []uint // physical frame numbers, len == Size/PageSize once populated
}

func (r *Region) end() uintptr { return r.Start + r.Size }
func (r *Region) overlaps(start, size uintptr) bool {
	return r.Start < start+size && start < r.end()
}

// AddressSpace is spec §3's "page-table root plus an ordered set of
// regions plus a heap window".
type AddressSpace struct {
	PageTable *pagetable.PageTable
	Regions   []*Region
	Heap      uintptr // brk
	phys      *PhysMem
}

// New creates an empty address space backed by phys.
func New(phys *PhysMem) *AddressSpace {
	return &AddressSpace{PageTable: pagetable.New(), phys: phys}
}

func pageAlign(v uintptr) bool { return v%pagetable.PageSize == 0 }

func (as *AddressSpace) insertSorted(r *Region) {
	i := sort.Search(len(as.Regions), func(i int) bool { return as.Regions[i].Start >= r.Start })
	as.Regions = append(as.Regions, nil)
	copy(as.Regions[i+1:], as.Regions[i:])
	as.Regions[i] = r
}

// findOverlap returns the index of the first region overlapping
// [start, start+size), or -1.
func (as *AddressSpace) findOverlap(start, size uintptr) int {
	for i, r := range as.Regions {
		if r.overlaps(start, size) {
			return i
		}
	}
	return -1
}

// MapRegion implements spec §4.4's map_region: allocate ceil(size/PAGE)
// frames, zero them, copy data in at offset 0, install mappings, and
// record the region. A non-zero overlap with an existing region
// fails with AlreadyExists ("MAP_FIXED" semantics; this package has
// no MAP_ANYWHERE variant since the caller always supplies start).
func (as *AddressSpace) MapRegion(start, size uintptr, flags pagetable.Flags, data []byte) (*Region, error) {
	if !pageAlign(start) {
		return nil, kerrno.New(kerrno.InvalidInput, "region start %#x is not page-aligned", start)
	}
	size = alignSizeUp(size)
	if as.findOverlap(start, size) >= 0 {
		return nil, kerrno.New(kerrno.AlreadyExists, "region [%#x, %#x) overlaps an existing mapping", start, start+size)
	}

	numPages := uint(size / pagetable.PageSize)
	frames, err := as.phys.allocFrames(numPages)
	if err != nil {
		return nil, err
	}
	for i, f := range frames {
		buf := as.phys.frameBytes(f)
		for j := range buf {
			buf[j] = 0
		}
		off := i * pagetable.PageSize
		if off < len(data) {
			copy(buf, data[off:])
		}
	}

	for i, f := range frames {
		virt := start + uintptr(i)*pagetable.PageSize
		phys := uintptr(f) * pagetable.PageSize
		if err := as.PageTable.MapRegion(virt, phys, pagetable.PageSize, flags); err != nil {
			return nil, err
		}
	}

	r := &Region{Start: start, Size: size, Flags: flags, frames: frames}
	as.insertSorted(r)
	return r, nil
}

func alignSizeUp(size uintptr) uintptr {
	return (size + pagetable.PageSize - 1) &^ (pagetable.PageSize - 1)
}

// Unmap implements spec §4.4's unmap: regions fully covered by
// [start, start+size) are torn down and their frames freed; a region
// only partially covered is split, preserving the residual portion's
// contents.
func (as *AddressSpace) Unmap(start, size uintptr) error {
	end := start + size
	var kept []*Region
	for _, r := range as.Regions {
		if !r.overlaps(start, size) {
			kept = append(kept, r)
			continue
		}
		if err := as.PageTable.UnmapRegion(r.Start, r.Size); err != nil {
			return err
		}
		switch {
		case start <= r.Start && r.end() <= end:
			as.freeFrames(r)
		case start <= r.Start && start < r.end() && end < r.end():
			// left part removed, right part survives
			residual := as.splitRight(r, end)
			kept = append(kept, residual)
		case r.Start < start && end >= r.end():
			// right part removed, left part survives
			residual := as.splitLeft(r, start)
			kept = append(kept, residual)
		default:
			// hole punched in the middle: both ends survive
			left := as.splitLeft(r, start)
			right := as.splitRight(r, end)
			kept = append(kept, left, right)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	as.Regions = kept
	return nil
}

// UnmapAll tears down every region in the address space, freeing all
// backing frames and leaving an empty user portion (spec §4.5 exec:
// "tears down all user regions" before constructing a fresh address
// space from the new ELF image).
func (as *AddressSpace) UnmapAll() error {
	for _, r := range as.Regions {
		if err := as.PageTable.UnmapRegion(r.Start, r.Size); err != nil {
			return err
		}
		as.freeFrames(r)
	}
	as.Regions = nil
	as.Heap = 0
	return nil
}

func (as *AddressSpace) freeFrames(r *Region) {
	for _, f := range r.frames {
		as.phys.frames.Dealloc(f)
	}
}

// splitLeft keeps r's bytes below cut, remapping them into a fresh
// region and freeing the frames above cut.
func (as *AddressSpace) splitLeft(r *Region, cut uintptr) *Region {
	keepPages := uint((cut - r.Start) / pagetable.PageSize)
	kept := r.frames[:keepPages]
	for _, f := range r.frames[keepPages:] {
		as.phys.frames.Dealloc(f)
	}
	as.remapFrames(r.Start, kept, r.Flags)
	return &Region{Start: r.Start, Size: uintptr(keepPages) * pagetable.PageSize, Flags: r.Flags, CopyOnWrite: r.CopyOnWrite, frames: kept}
}

// splitRight keeps r's bytes at/above cut.
func (as *AddressSpace) splitRight(r *Region, cut uintptr) *Region {
	dropPages := uint((cut - r.Start) / pagetable.PageSize)
	for _, f := range r.frames[:dropPages] {
		as.phys.frames.Dealloc(f)
	}
	kept := r.frames[dropPages:]
	as.remapFrames(cut, kept, r.Flags)
	return &Region{Start: cut, Size: uintptr(len(kept)) * pagetable.PageSize, Flags: r.Flags, CopyOnWrite: r.CopyOnWrite, frames: kept}
}

// remapFrames installs fresh PTEs for frames at start; the caller has
// already torn down the overlapping old mapping, so this cannot
// collide with an existing entry.
func (as *AddressSpace) remapFrames(start uintptr, frames []uint, flags pagetable.Flags) {
	for i, f := range frames {
		virt := start + uintptr(i)*pagetable.PageSize
		if err := as.PageTable.MapRegion(virt, uintptr(f)*pagetable.PageSize, pagetable.PageSize, flags); err != nil {
			panic("addrspace: unexpected remap conflict after unmap: " + err.Error())
		}
	}
}

// Protect implements spec §4.4's protect: modify PTE flags without
// touching backing frames. Only a whole region can be protected:
// start must equal a region's start and size must round up to that
// region's size. A sub-range returns InvalidInput; regions are not
// split.
func (as *AddressSpace) Protect(start, size uintptr, flags pagetable.Flags) error {
	idx := as.findOverlap(start, size)
	if idx < 0 {
		return kerrno.New(kerrno.NotFound, "no region covers [%#x, %#x)", start, start+size)
	}
	r := as.Regions[idx]
	if r.Start == start && r.Size == alignSizeUp(size) {
		if err := as.PageTable.Protect(r.Start, r.Size, flags); err != nil {
			return err
		}
		r.Flags = flags
		return nil
	}
	return kerrno.New(kerrno.InvalidInput, "partial-region protect requires start/size to match a whole region in this implementation")
}

// Query implements spec §4.4's query: pure translation via the page
// table, with the page size always PageSize in this simulation (the
// original supports superpages; this core only models the baseline
// granule per §9's "best-effort statistics" scoping allowance).
func (as *AddressSpace) Query(vaddr uintptr) (paddr uintptr, flags pagetable.Flags, pageSize uintptr, err error) {
	paddr, flags, err = as.PageTable.Query(vaddr)
	return paddr, flags, pagetable.PageSize, err
}

// RegionAt returns the region covering vaddr, if any (spec §8
// invariant 3: query succeeds iff some region covers the address).
func (as *AddressSpace) RegionAt(vaddr uintptr) (*Region, bool) {
	for _, r := range as.Regions {
		if r.Start <= vaddr && vaddr < r.end() {
			return r, true
		}
	}
	return nil, false
}

// HandleFault implements spec §4.4's page-fault policy: look up the
// faulting address in the region table; if a region covers it, its
// flags permit the access, and it is marked Lazy, allocate a frame
// and install the PTE. Otherwise report SIGSEGV (kerrno.Fault).
func (as *AddressSpace) HandleFault(vaddr uintptr, write bool) error {
	r, ok := as.RegionAt(vaddr)
	if !ok {
		return kerrno.New(kerrno.Fault, "no region covers faulting address %#x", vaddr)
	}
	if write && r.Flags&pagetable.Write == 0 {
		return kerrno.New(kerrno.Fault, "write fault at %#x: region is not writable", vaddr)
	}
	page := vaddr &^ (pagetable.PageSize - 1)
	idx := int((page - r.Start) / pagetable.PageSize)

	if write && r.CopyOnWrite && r.cowPending {
		return as.resolveCOW(r, page, idx)
	}
	if !r.Lazy {
		return kerrno.New(kerrno.Fault, "fault at %#x: region is not lazily populated", vaddr)
	}
	if idx < len(r.frames) && r.frames[idx] != 0 {
		return nil // already populated, spurious fault
	}
	frames, err := as.phys.allocFrames(1)
	if err != nil {
		return err
	}
	buf := as.phys.frameBytes(frames[0])
	for i := range buf {
		buf[i] = 0
	}
	if err := as.PageTable.MapRegion(page, uintptr(frames[0])*pagetable.PageSize, pagetable.PageSize, r.Flags); err != nil {
		return err
	}
	for len(r.frames) <= idx {
		r.frames = append(r.frames, 0)
	}
	r.frames[idx] = frames[0]
	return nil
}

// resolveCOW performs the deferred copy-on-write copy for a single
// page: a fresh frame is allocated, the shared frame's contents are
// duplicated into it, and the region's real (writable) flags are
// installed for that page. The region stays cowPending for its other
// pages until each takes its own write fault.
func (as *AddressSpace) resolveCOW(r *Region, page uintptr, idx int) error {
	shared := r.frames[idx]
	frames, err := as.phys.allocFrames(1)
	if err != nil {
		return err
	}
	copy(as.phys.frameBytes(frames[0]), as.phys.frameBytes(shared))

	if err := as.PageTable.UnmapRegion(page, pagetable.PageSize); err != nil {
		return err
	}
	if err := as.PageTable.MapRegion(page, uintptr(frames[0])*pagetable.PageSize, pagetable.PageSize, r.Flags); err != nil {
		return err
	}
	r.frames[idx] = frames[0]
	return nil
}
