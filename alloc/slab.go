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

package alloc

// DefaultSlabClasses are the power-of-two object-size classes a
// SlabAllocator serves from dedicated free lists before falling back
// to the bump allocator for oversized requests.
var DefaultSlabClasses = []uintptr{16, 32, 64, 128, 256, 512, 1024, 2048}

// SlabAllocator is spec §4.1's slab back-end: pre-classed fixed
// object sizes plus a bump pointer for oversized requests.
type SlabAllocator struct {
	classes   []uintptr
	freeList  map[uintptr][]uintptr
	bump, end uintptr
	allocated map[uintptr]uintptr // addr -> granted size (class size, or exact size if oversized)

	total, used uintptr
}

// NewSlab builds a slab allocator with classes (sorted ascending,
// each a power of two). Pass nil to use DefaultSlabClasses.
func NewSlab(classes []uintptr) *SlabAllocator {
	if classes == nil {
		classes = DefaultSlabClasses
	}
	return &SlabAllocator{
		classes:   classes,
		freeList:  make(map[uintptr][]uintptr),
		allocated: make(map[uintptr]uintptr),
	}
}

func (s *SlabAllocator) AddMemory(base, size uintptr) error {
	if s.end == 0 {
		s.bump = base
	}
	s.end = base + size
	s.total += size
	return nil
}

func (s *SlabAllocator) classFor(size uintptr) (uintptr, bool) {
	for _, cl := range s.classes {
		if size <= cl {
			return cl, true
		}
	}
	return 0, false
}

func (s *SlabAllocator) bumpCarve(size, align uintptr) (uintptr, error) {
	start := alignUp(s.bump, align)
	if start+size > s.end {
		return 0, oom(size, align)
	}
	s.bump = start + size
	return start, nil
}

// Alloc serves size from the smallest class >= size (reusing a freed
// slot if one exists), or from the oversized bump path.
func (s *SlabAllocator) Alloc(size, align uintptr) (uintptr, error) {
	if err := checkAlign(align); err != nil {
		return 0, err
	}
	if size == 0 {
		size = 1
	}
	cl, ok := s.classFor(size)
	if !ok || cl%align != 0 {
		// Oversized, or this class's natural alignment can't satisfy
		// the caller's request: fall through to the bump path at the
		// exact requested size.
		addr, err := s.bumpCarve(size, align)
		if err != nil {
			return 0, err
		}
		s.allocated[addr] = size
		s.used += size
		return addr, nil
	}
	if free := s.freeList[cl]; len(free) > 0 {
		addr := free[len(free)-1]
		s.freeList[cl] = free[:len(free)-1]
		s.allocated[addr] = cl
		s.used += cl
		return addr, nil
	}
	addr, err := s.bumpCarve(cl, cl)
	if err != nil {
		return 0, err
	}
	s.allocated[addr] = cl
	s.used += cl
	return addr, nil
}

// Dealloc returns a class slot to its free list for reuse; an
// oversized bump allocation cannot be reclaimed for reuse (the bump
// cursor never retreats), only its accounted size is released, the
// best-effort statistics behaviour spec §9's open question allows.
func (s *SlabAllocator) Dealloc(addr, size, align uintptr) {
	granted, ok := s.allocated[addr]
	if !ok {
		panic("alloc: dealloc of address not returned by Alloc (double free or bad address)")
	}
	delete(s.allocated, addr)
	s.used -= granted
	if s.classOf(granted) != 0 {
		s.freeList[granted] = append(s.freeList[granted], addr)
	}
}

// classOf reports cl itself if cl is one of the configured classes
// (used to distinguish a class-sized grant from an oversized one
// that happens to equal a class boundary).
func (s *SlabAllocator) classOf(size uintptr) uintptr {
	for _, cl := range s.classes {
		if cl == size {
			return cl
		}
	}
	return 0
}

func (s *SlabAllocator) TotalBytes() uintptr     { return s.total }
func (s *SlabAllocator) UsedBytes() uintptr      { return s.used }
func (s *SlabAllocator) AvailableBytes() uintptr { return s.total - s.used }
