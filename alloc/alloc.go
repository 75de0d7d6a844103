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

// Package alloc implements the pluggable byte-granularity heap
// back-ends of spec §4.1: first/best/worst-fit linked list, binary
// buddy, slab, TLSF and a mimalloc-style segment/page/block
// allocator. None of the back-ends are safe for concurrent use on
// their own (spec §4.1); the global allocator façade in this
// package's Facade type wraps one in a mutex.
//
// This is a user-space simulation of a heap over a byte arena rather
// than a driver for raw physical memory, so block headers are kept as
// bookkeeping structs external to the arena (an "address" is an
// offset into the arena) instead of being written in-band into a byte
// slice with unsafe pointer arithmetic. The allocation algorithms
// (fit selection, splitting, coalescing, alignment) are unchanged by
// that choice, only where the header bytes physically live.
package alloc

import (
	"github.com/gokern/gokern/kerrno"
)

// minSplit is the minimum remainder size spec §4.1 requires before a
// partially-used block is split and the remainder returned to the
// free list ("header + 16 bytes"); since our headers are external
// bookkeeping rather than in-band bytes, the "header" contribution is
// zero and the threshold is the bare 16 bytes named in the spec.
const minSplit = 16

// Allocator is the uniform capability spec §4.1 names: init/add
// memory, alloc/dealloc, and best-effort statistics.
type Allocator interface {
	// AddMemory extends the arena with another disjoint region.
	AddMemory(base, size uintptr) error
	// Alloc returns an address satisfying size/align or a
	// ResourceExhausted error.
	Alloc(size, align uintptr) (uintptr, error)
	// Dealloc returns a previously allocated block. Passing an
	// address/size/align that was not returned by Alloc is a
	// precondition violation (spec §4.1) and panics.
	Dealloc(addr, size, align uintptr)
	TotalBytes() uintptr
	UsedBytes() uintptr
	AvailableBytes() uintptr
}

func isPow2(v uintptr) bool { return v != 0 && v&(v-1) == 0 }

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func checkAlign(align uintptr) error {
	if !isPow2(align) {
		return kerrno.New(kerrno.InvalidInput, "alignment %d is not a power of two", align)
	}
	return nil
}

func oom(size, align uintptr) error {
	return kerrno.New(kerrno.ResourceExhausted, "out of memory: no block of size %d align %d available", size, align)
}
