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

// Package process implements spec §4.5's process core: processes
// owning a shared address space, FD table and child set over
// package sched's tasks, with clone/exec/wait/exit as the state
// machine spec.md describes.
package process

import (
	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/pagealloc"
)

// InitPID is the well-known "init" process spec §3 names: an exited
// leader's children are reparented to it.
const InitPID = 1

// PIDAllocator hands out process ids from a fixed-capacity space
// (spec §6: "PID space full"), reusing the page allocator's
// multi-level bitmap type instead of a second bespoke free-index
// structure.
type PIDAllocator struct {
	bm *pagealloc.Bitmap
}

// NewPIDAllocator creates a PID space of the given capacity with PID
// 0 reserved (never handed out) so allocated PIDs are always >= 1,
// matching InitPID's reservation of PID 1 for the well-known process.
func NewPIDAllocator(capacity uint) *PIDAllocator {
	a := &PIDAllocator{bm: pagealloc.New(capacity)}
	a.bm.Insert(1, capacity)
	return a
}

func (a *PIDAllocator) Alloc() (uint64, error) {
	id, ok := a.bm.Alloc()
	if !ok {
		return 0, kerrno.New(kerrno.ResourceExhausted, "pid space exhausted")
	}
	return uint64(id), nil
}

func (a *PIDAllocator) Free(pid uint64) {
	a.bm.Dealloc(uint(pid))
}
