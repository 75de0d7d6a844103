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

import "math/bits"

// Queue indices and page-kind boundaries mirror spec §4.1's mimalloc
// design: 75 queues in all, 71 keyed by a coarse 3-high-bit size
// bucket and four reserved slots for huge pages and the free/full
// page lists.
const (
	totQueues      = 75
	hugeQueue      = 71
	fullQueue      = 72
	freeSmallQueue = 73
	freeMediumQueue = 74

	smallPageSize  = 64 * 1024
	mediumPageSize = 4 * 1024 * 1024
	segmentAlign   = 4 * 1024 * 1024
)

func log2(x uintptr) uint {
	if x == 0 {
		return 0
	}
	return uint(bits.Len(uint(x))) - 1
}

// queueID buckets size into one of the totQueues free-list queues:
// sizes below 64 bytes get one queue per 8-byte step, larger sizes
// get one queue per (high 2 bits of the magnitude) after rounding up
// with upperSize, and anything at or above 4 MiB goes to the huge
// queue. A size therefore shares its queue with upperSize(size).
func queueID(size uintptr) int {
	s := (size + 7) >> 3
	if s <= 7 {
		if s == 0 {
			s = 1
		}
		return int(s) - 1
	}
	s = upperSize(size) >> 3
	if s >= (1 << 19) {
		return hugeQueue
	}
	lg := log2(s)
	return int(lg)*4 - 5 + int((s>>(lg-2))&3)
}

// upperSize rounds size up to the smallest block size mimalloc's
// queueID bucketing actually serves, so repeated rounding is a no-op
// (spec §8 scenario S3): get_upper_size(get_upper_size(s)) == get_upper_size(s).
func upperSize(size uintptr) uintptr {
	s := (size + 7) >> 3
	if s <= 7 {
		return s << 3
	}
	lg := log2(s)
	tmp := s >> (lg - 2)
	if s == tmp<<(lg-2) {
		return tmp << (lg + 1)
	}
	return (tmp + 1) << (lg + 1)
}

// miBlock is a free block within a page's free list.
type miBlock struct {
	addr uintptr
	next *miBlock
}

// miPage holds one size class's worth of same-sized blocks carved
// from a segment, plus a bump cursor for blocks never yet handed out.
type miPage struct {
	blockSize           uintptr
	begin, end, bump    uintptr
	freeList            *miBlock
	freeBlocks, capTotal uintptr
	prev, next          *miPage
	queue               int
}

func (p *miPage) isFull() bool  { return p.freeBlocks == 0 }
func (p *miPage) isEmpty() bool { return p.blockSize != 0 && p.freeBlocks == p.capTotal }

func (p *miPage) initSize(size uintptr) {
	p.blockSize = size
	p.bump = p.begin
	p.freeList = nil
	if size == 0 {
		p.freeBlocks, p.capTotal = 0, 0
		return
	}
	p.capTotal = (p.end - p.begin) / size
	p.freeBlocks = p.capTotal
}

// getBlock serves one block from the page's free list, or bumps the
// cursor if nothing has been freed back yet; ok is false when the
// page has no block left.
func (p *miPage) getBlock() (addr uintptr, ok bool) {
	if p.freeList != nil {
		b := p.freeList
		p.freeList = b.next
		p.freeBlocks--
		return b.addr, true
	}
	if p.bump+p.blockSize <= p.end {
		addr := p.bump
		p.bump += p.blockSize
		p.freeBlocks--
		return addr, true
	}
	return 0, false
}

func (p *miPage) returnBlock(addr uintptr) {
	p.freeList = &miBlock{addr: addr, next: p.freeList}
	p.freeBlocks++
}

// miSegment is a 4 MiB-aligned arena subdivided into same-kind pages
// (all small, all medium, or a single huge page), per spec §4.1.
type miSegment struct {
	base, size uintptr
	pages      []*miPage
}

func pageKindFor(size uintptr) (pageSize uintptr) {
	switch {
	case size < smallPageSize:
		return smallPageSize
	case size < mediumPageSize:
		return mediumPageSize
	default:
		return size
	}
}

// MimallocAllocator is spec §4.1's segment/page/block back-end.
type MimallocAllocator struct {
	queues    [totQueues]*miPage
	segments  []*miSegment
	allocated map[uintptr]uintptr // addr -> block size
	total, used uintptr
}

// NewMimalloc constructs an empty mimalloc-style allocator.
func NewMimalloc() *MimallocAllocator {
	return &MimallocAllocator{allocated: make(map[uintptr]uintptr)}
}

func (a *MimallocAllocator) insertList(idx int, p *miPage) {
	if head := a.queues[idx]; head != nil {
		head.prev = p
	}
	p.prev = nil
	p.next = a.queues[idx]
	p.queue = idx
	a.queues[idx] = p
}

func (a *MimallocAllocator) removeList(idx int, p *miPage) {
	if p.prev != nil {
		p.prev.next = p.next
	} else if a.queues[idx] == p {
		a.queues[idx] = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	p.prev, p.next = nil, nil
}

// AddMemory carves base/size into one or more 4 MiB-aligned segments,
// each holding small or medium pages sized per spec §4.1 (a segment
// smaller than segmentAlign becomes a single huge-kind segment
// holding one page sized to fit). Every carved page starts
// uninitialised (block size 0) and sits on the free-small or
// free-medium reserve queue until acquirePage claims and sizes it.
func (a *MimallocAllocator) AddMemory(base, size uintptr) error {
	a.total += size
	offset := uintptr(0)
	for offset < size {
		segSize := segmentAlign
		if uintptr(segSize) > size-offset {
			segSize = int(size - offset)
		}
		seg := &miSegment{base: base + offset, size: uintptr(segSize)}
		pageSize := pageKindFor(uintptr(segSize))
		if pageSize > uintptr(segSize) {
			pageSize = uintptr(segSize)
		}
		for begin := seg.base; begin < seg.base+uintptr(segSize); begin += pageSize {
			end := begin + pageSize
			if end > seg.base+uintptr(segSize) {
				end = seg.base + uintptr(segSize)
			}
			p := &miPage{begin: begin, end: end}
			p.initSize(0)
			seg.pages = append(seg.pages, p)
			if pageSize >= mediumPageSize {
				a.insertList(freeMediumQueue, p)
			} else if pageSize >= smallPageSize {
				a.insertList(freeSmallQueue, p)
			} else {
				// A segment smaller than one small page (e.g. a tiny
				// test arena) serves directly as its own huge-kind page.
				p.initSize(0)
				a.insertList(hugeQueue, p)
			}
		}
		a.segments = append(a.segments, seg)
		offset += uintptr(segSize)
	}
	return nil
}

// findSegmentPage locates the segment and page covering addr, used by
// Dealloc to route a freed block back to its owning page.
func (a *MimallocAllocator) findSegmentPage(addr uintptr) (*miSegment, *miPage) {
	for _, seg := range a.segments {
		if addr >= seg.base && addr < seg.base+seg.size {
			for _, p := range seg.pages {
				if addr >= p.begin && addr < p.end {
					return seg, p
				}
			}
		}
	}
	return nil, nil
}

// acquirePage returns an initialised page able to serve size,
// reusing the queue's current page, pulling a fresh page from the
// free-small/free-medium reserve, or carving directly for huge sizes.
func (a *MimallocAllocator) acquirePage(size uintptr) *miPage {
	idx := queueID(size)
	if idx != hugeQueue {
		if p := a.queues[idx]; p != nil && !p.isFull() {
			return p
		}
		srcQueue := freeSmallQueue
		if size >= smallPageSize {
			srcQueue = freeMediumQueue
		}
		if p := a.queues[srcQueue]; p != nil {
			a.removeList(srcQueue, p)
			p.initSize(upperSize(size))
			a.insertList(idx, p)
			return p
		}
		return nil
	}
	var best, spare *miPage
	for p := a.queues[hugeQueue]; p != nil; p = p.next {
		if p.blockSize == 0 {
			if p.end-p.begin >= size && (spare == nil || p.end-p.begin < spare.end-spare.begin) {
				spare = p
			}
			continue
		}
		if p.blockSize >= size && !p.isFull() && (best == nil || p.blockSize < best.blockSize) {
			best = p
		}
	}
	if best != nil {
		return best
	}
	if spare != nil {
		spare.initSize(size)
		return spare
	}
	return nil
}

// Alloc implements spec §4.1's mimalloc allocation path: bucket size
// into a queue, serve from that queue's current page (free list or
// bump), migrating a fresh page in from the reserve on exhaustion.
func (a *MimallocAllocator) Alloc(size, align uintptr) (uintptr, error) {
	if err := checkAlign(align); err != nil {
		return 0, err
	}
	if size == 0 {
		size = 1
	}
	want := upperSize(size)
	if align > 8 {
		want = alignUp(want, align)
		want = upperSize(want)
	}

	p := a.acquirePage(want)
	if p == nil {
		return 0, oom(size, align)
	}
	addr, ok := p.getBlock()
	if !ok {
		return 0, oom(size, align)
	}
	if addr%align != 0 {
		return 0, oom(size, align)
	}
	if p.isFull() {
		a.removeList(p.queue, p)
		a.insertList(fullQueue, p)
	}
	a.allocated[addr] = p.blockSize
	a.used += p.blockSize
	return addr, nil
}

func (a *MimallocAllocator) Dealloc(addr, size, align uintptr) {
	blockSize, ok := a.allocated[addr]
	if !ok {
		panic("alloc: dealloc of address not returned by Alloc (double free or bad address)")
	}
	delete(a.allocated, addr)
	a.used -= blockSize

	_, p := a.findSegmentPage(addr)
	if p == nil {
		return
	}
	wasFull := p.isFull()
	p.returnBlock(addr)
	if wasFull {
		a.removeList(fullQueue, p)
		a.insertList(queueID(p.blockSize), p)
	}
}

func (a *MimallocAllocator) TotalBytes() uintptr     { return a.total }
func (a *MimallocAllocator) UsedBytes() uintptr      { return a.used }
func (a *MimallocAllocator) AvailableBytes() uintptr { return a.total - a.used }
