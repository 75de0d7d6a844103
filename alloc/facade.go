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

import (
	"sync"
)

// Backend names the back-end kind a Facade wraps, matching the
// "default allocator" configuration option of spec §6.
type Backend string

const (
	BackendFirstFit Backend = "firstfit"
	BackendBestFit  Backend = "bestfit"
	BackendWorstFit Backend = "worstfit"
	BackendBuddy    Backend = "buddy"
	BackendSlab     Backend = "slab"
	BackendTLSF     Backend = "tlsf"
	BackendMimalloc Backend = "mimalloc"
)

// buddyMinOrder is the smallest block order (2^4 = 16 bytes) the
// global heap's buddy back-end splits down to, matching minSplit.
const buddyMinOrder = 4

// newBackend constructs the Allocator implementation named by kind.
// Unknown kinds fall back to TLSF, spec §4.1's general-purpose
// default.
func newBackend(kind Backend) Allocator {
	switch kind {
	case BackendFirstFit:
		return NewFirstFit()
	case BackendBestFit:
		return NewBestFit()
	case BackendWorstFit:
		return NewWorstFit()
	case BackendBuddy:
		return NewBuddy(buddyMinOrder)
	case BackendSlab:
		return NewSlab(nil)
	case BackendMimalloc:
		return NewMimalloc()
	default:
		return NewTLSF()
	}
}

// Facade is spec §6's L1 global allocator: it wraps exactly one
// back-end behind a lock so `alloc`/`dealloc` are safe to call from
// any CPU. The back-ends themselves assume single-threaded access
// (spec §4.1); Facade is the only place in this package that provides
// mutual exclusion, standing in for the original's per-CPU
// IRQ-disabling spinlock (this is a user-space simulation with no
// IRQs to mask, so a plain mutex serves the same serialising role).
type Facade struct {
	mu      sync.Mutex
	backend Allocator
}

// NewFacade wraps a freshly constructed back-end of the requested
// kind.
func NewFacade(kind Backend) *Facade {
	return &Facade{backend: newBackend(kind)}
}

// NewFacadeWith wraps a caller-supplied back-end, e.g. to swap in a
// custom configuration such as non-default slab classes.
func NewFacadeWith(backend Allocator) *Facade {
	if backend == nil {
		panic("alloc: NewFacadeWith requires a non-nil backend")
	}
	return &Facade{backend: backend}
}

func (f *Facade) AddMemory(base, size uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend.AddMemory(base, size)
}

func (f *Facade) Alloc(size, align uintptr) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend.Alloc(size, align)
}

func (f *Facade) Dealloc(addr, size, align uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backend.Dealloc(addr, size, align)
}

func (f *Facade) TotalBytes() uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend.TotalBytes()
}

func (f *Facade) UsedBytes() uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend.UsedBytes()
}

func (f *Facade) AvailableBytes() uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend.AvailableBytes()
}

var _ Allocator = (*Facade)(nil)
