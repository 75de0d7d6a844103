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

package sched

import "container/heap"

// RunQueue is the pluggable scheduling policy spec §4.2 names:
// "the run queue is abstract and has implementations for FIFO,
// round-robin ... and a CFS-style vruntime ordering." A RunQueue is
// always accessed under its owning CPU's lock, never its own.
type RunQueue interface {
	// Push makes t eligible to run.
	Push(t *Task)
	// Pop removes and returns the next task to run, or nil if empty.
	Pop() *Task
	// Tick is called once per timer tick with the currently running
	// task (nil if the CPU is idle) and reports whether that task's
	// quantum is exhausted and it should be preempted back onto the
	// queue.
	Tick(current *Task) bool
	Len() int
}

// --- FIFO ---

// FIFOQueue runs tasks to voluntary suspension only; Tick never
// requests preemption, matching a pure first-come-first-served policy.
type FIFOQueue struct {
	q []*Task
}

func NewFIFOQueue() *FIFOQueue { return &FIFOQueue{} }

func (r *FIFOQueue) Push(t *Task) { r.q = append(r.q, t) }

func (r *FIFOQueue) Pop() *Task {
	if len(r.q) == 0 {
		return nil
	}
	t := r.q[0]
	r.q = r.q[1:]
	return t
}

func (r *FIFOQueue) Tick(current *Task) bool { return false }

func (r *FIFOQueue) Len() int { return len(r.q) }

// --- Round robin ---

// RoundRobinQueue gives each running task a fixed per-CPU tick budget
// (spec §4.2: "round-robin (per-CPU tick budget)"); Tick decrements
// the running task's remaining slice and requests preemption once it
// hits zero, resetting it for its next turn.
type RoundRobinQueue struct {
	q     []*Task
	slice int
}

func NewRoundRobinQueue(slice int) *RoundRobinQueue {
	if slice <= 0 {
		slice = defaultTimeSlice
	}
	return &RoundRobinQueue{slice: slice}
}

func (r *RoundRobinQueue) Push(t *Task) {
	t.timeSlice = r.slice
	r.q = append(r.q, t)
}

func (r *RoundRobinQueue) Pop() *Task {
	if len(r.q) == 0 {
		return nil
	}
	t := r.q[0]
	r.q = r.q[1:]
	return t
}

func (r *RoundRobinQueue) Tick(current *Task) bool {
	if current == nil {
		return false
	}
	current.timeSlice--
	return current.timeSlice <= 0
}

func (r *RoundRobinQueue) Len() int { return len(r.q) }

// --- CFS-style vruntime ordering ---

type vrHeap []*Task

func (h vrHeap) Len() int            { return len(h) }
func (h vrHeap) Less(i, j int) bool  { return h[i].vruntime < h[j].vruntime }
func (h vrHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *vrHeap) Push(x interface{}) { *h = append(*h, x.(*Task)) }
func (h *vrHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// CFSQueue orders ready tasks by accumulated virtual runtime, lowest
// first, the simplified analogue of Linux's CFS red-black tree (spec
// §4.2: "a CFS-style vruntime ordering"). Each tick advances the
// running task's vruntime by its priority value (at least 1), so a
// lower priority value means slower vruntime growth and more CPU
// share, and preemption is requested once another
// ready task's vruntime would be lower than the running one's after
// this tick, so the scheduler stays fair across priorities.
type CFSQueue struct {
	h vrHeap
}

func NewCFSQueue() *CFSQueue {
	q := &CFSQueue{}
	heap.Init(&q.h)
	return q
}

func (r *CFSQueue) Push(t *Task) { heap.Push(&r.h, t) }

func (r *CFSQueue) Pop() *Task {
	if r.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&r.h).(*Task)
}

func (r *CFSQueue) weight(t *Task) int64 {
	w := int64(t.priority)
	if w < 1 {
		w = 1
	}
	return w
}

func (r *CFSQueue) Tick(current *Task) bool {
	if current == nil {
		return false
	}
	current.vruntime += r.weight(current)
	return r.h.Len() > 0 && r.h[0].vruntime < current.vruntime
}

func (r *CFSQueue) Len() int { return r.h.Len() }
