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

// Fit selects which candidate block a ListAllocator picks among the
// free blocks large enough to satisfy a request.
type Fit int

const (
	// FirstFit returns the first sufficiently large block found
	// walking the free list from its head.
	FirstFit Fit = iota
	// BestFit returns the smallest sufficiently large block.
	BestFit
	// WorstFit returns the largest available block.
	WorstFit
)

// freeBlock is one node of the doubly-linked, address-ordered free
// list described in spec §4.1: each free block knows its physical
// neighbours so coalescing on free is O(1) once the block itself is
// located.
type freeBlock struct {
	addr, size  uintptr
	prev, next  *freeBlock
}

// ListAllocator is the "First/best/worst-fit linked list" back-end of
// spec §4.1.
type ListAllocator struct {
	fit         Fit
	head        *freeBlock
	total, used uintptr
	allocated   map[uintptr]blockExtent // returned addr -> real block extent consumed
}

// blockExtent records the true [start, start+size) taken out of the
// free list for one allocation, which may begin before and/or end
// after the aligned address handed back to the caller when the head
// or tail gap was too small to stand alone as its own free block
// (spec §4.1's "minimum (header + 16 bytes)" rule).
type blockExtent struct {
	start, size uintptr
}

// NewFirstFit, NewBestFit and NewWorstFit construct a ListAllocator
// with no backing memory; call AddMemory before allocating.
func NewFirstFit() *ListAllocator { return newList(FirstFit) }
func NewBestFit() *ListAllocator  { return newList(BestFit) }
func NewWorstFit() *ListAllocator { return newList(WorstFit) }

func newList(fit Fit) *ListAllocator {
	return &ListAllocator{fit: fit, allocated: make(map[uintptr]blockExtent)}
}

func (a *ListAllocator) insertFree(addr, size uintptr) {
	if size == 0 {
		return
	}
	// Find the node immediately after addr to keep the list
	// address-ordered, which is what makes physical-neighbour
	// coalescing a local operation.
	var after *freeBlock
	for b := a.head; b != nil; b = b.next {
		if b.addr > addr {
			after = b
			break
		}
	}
	nb := &freeBlock{addr: addr, size: size}
	if after == nil {
		// append at tail
		if a.head == nil {
			a.head = nb
		} else {
			tail := a.head
			for tail.next != nil {
				tail = tail.next
			}
			tail.next = nb
			nb.prev = tail
		}
	} else {
		nb.next = after
		nb.prev = after.prev
		if after.prev != nil {
			after.prev.next = nb
		} else {
			a.head = nb
		}
		after.prev = nb
	}
	a.coalesce(nb)
}

// coalesce merges nb with its physical neighbours; O(1) given nb's
// prev/next pointers since the list is address-ordered.
func (a *ListAllocator) coalesce(nb *freeBlock) {
	if nb.next != nil && nb.addr+nb.size == nb.next.addr {
		nb.size += nb.next.size
		nxt := nb.next
		nb.next = nxt.next
		if nxt.next != nil {
			nxt.next.prev = nb
		}
	}
	if nb.prev != nil && nb.prev.addr+nb.prev.size == nb.addr {
		nb.prev.size += nb.size
		nb.prev.next = nb.next
		if nb.next != nil {
			nb.next.prev = nb.prev
		}
	}
}

func (a *ListAllocator) unlink(b *freeBlock) {
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		a.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	}
}

// AddMemory registers [base, base+size) as available arena.
func (a *ListAllocator) AddMemory(base, size uintptr) error {
	if size == 0 {
		return nil
	}
	a.total += size
	a.insertFree(base, size)
	return nil
}

// candidate returns the block chosen under a.fit that can satisfy an
// aligned allocation of size, or nil.
func (a *ListAllocator) candidate(size, align uintptr) *freeBlock {
	var chosen *freeBlock
	for b := a.head; b != nil; b = b.next {
		start := alignUp(b.addr, align)
		if start+size > b.addr+b.size || start < b.addr {
			continue
		}
		switch a.fit {
		case FirstFit:
			return b
		case BestFit:
			if chosen == nil || b.size < chosen.size {
				chosen = b
			}
		case WorstFit:
			if chosen == nil || b.size > chosen.size {
				chosen = b
			}
		}
	}
	return chosen
}

// Alloc implements spec §4.1's allocate-with-fit, split-on-success
// contract.
func (a *ListAllocator) Alloc(size, align uintptr) (uintptr, error) {
	if err := checkAlign(align); err != nil {
		return 0, err
	}
	if size == 0 {
		size = 1
	}
	b := a.candidate(size, align)
	if b == nil {
		return 0, oom(size, align)
	}
	a.unlink(b)

	start := alignUp(b.addr, align)
	headGap := start - b.addr
	tailGap := (b.addr + b.size) - (start + size)

	blockStart, blockEnd := b.addr, b.addr+b.size
	if headGap >= minSplit {
		a.insertFree(b.addr, headGap)
		blockStart = start
	}
	if tailGap >= minSplit {
		a.insertFree(start+size, tailGap)
		blockEnd = start + size
	}

	blockSize := blockEnd - blockStart
	a.used += blockSize
	a.allocated[start] = blockExtent{start: blockStart, size: blockSize}
	return start, nil
}

// Dealloc returns a block to the free list and coalesces it with its
// physical neighbours.
func (a *ListAllocator) Dealloc(addr, size, align uintptr) {
	ext, ok := a.allocated[addr]
	if !ok {
		panic("alloc: dealloc of address not returned by Alloc (double free or bad address)")
	}
	delete(a.allocated, addr)
	a.used -= ext.size
	a.insertFree(ext.start, ext.size)
}

func (a *ListAllocator) TotalBytes() uintptr     { return a.total }
func (a *ListAllocator) UsedBytes() uintptr      { return a.used }
func (a *ListAllocator) AvailableBytes() uintptr { return a.total - a.used }
