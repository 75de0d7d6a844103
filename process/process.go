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

package process

import (
	"sync"

	"github.com/gokern/gokern/addrspace"
	"github.com/gokern/gokern/fd"
	"github.com/gokern/gokern/kerrno"
	"github.com/gokern/gokern/sched"
)

// Body is the "user program" a process's leader (or a cloned thread)
// runs. There is no real CPU to jump to an ELF entry point on (spec.md
// §1 places trap-vector/instruction-level execution out of scope), so
// a Body stands in for it: it receives the process and the task
// running it and returns the value exit(2) would be called with if
// the body returns normally instead of calling Registry.Exit itself.
type Body func(p *Process, t *sched.Task) int

// Process is spec §3's process: pid, parent (weak, stored as a PID),
// an owned child list, a leader task (strong) plus non-leader task
// list (strong), a shared address space, a shared FD table, and the
// zombie/exit-code pair a reaper reads.
type Process struct {
	PID       uint64
	ParentPID uint64

	mu        sync.Mutex
	children  []*Process
	Leader    *sched.Task
	Tasks     []*sched.Task // non-leader tasks of this process
	AS        *addrspace.AddressSpace
	FDs       *fd.Table
	Zombie    bool
	ExitCode  int
	childExit *sched.WaitQueue
}

func (p *Process) addChild(c *Process) {
	p.mu.Lock()
	p.children = append(p.children, c)
	p.mu.Unlock()
}

func (p *Process) removeChild(pid uint64) (*Process, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.children {
		if c.PID == pid {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

// Children returns a snapshot of this process's child list.
func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Process, len(p.children))
	copy(out, p.children)
	return out
}

// IsZombie reports whether the process has exited and not yet been
// reaped.
func (p *Process) IsZombie() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Zombie
}

// Registry is the kernel-wide "PID2PC" table (spec §9 names its
// cyclic-ownership resolution; the registry is where every live
// Process is looked up by pid) plus the resources every process is
// built from: the PID space, the scheduling system tasks are spawned
// onto, and the shared physical memory pool address spaces draw pages
// from.
type Registry struct {
	mu         sync.Mutex
	procs      map[uint64]*Process
	pids       *PIDAllocator
	Sys        *sched.System
	Phys       *addrspace.PhysMem
	FDCapacity int
	Init       *Process
}

// NewRegistry builds an empty registry and its well-known init
// process (spec §9's "init", to which an exited leader's children are
// reparented). Init owns no address space of its own (it never runs
// user code; it exists only as an adoption point).
func NewRegistry(sys *sched.System, phys *addrspace.PhysMem, fdCapacity int) *Registry {
	r := &Registry{
		procs:      make(map[uint64]*Process),
		pids:       NewPIDAllocator(1 << 16),
		Sys:        sys,
		Phys:       phys,
		FDCapacity: fdCapacity,
	}
	initPID, err := r.pids.Alloc()
	if err != nil || initPID != InitPID {
		panic("process: init process must be the first PID allocated")
	}
	r.Init = &Process{PID: InitPID, childExit: sched.NewWaitQueue()}
	r.procs[InitPID] = r.Init
	return r
}

func (r *Registry) register(p *Process) {
	r.mu.Lock()
	r.procs[p.PID] = p
	r.mu.Unlock()
}

// Lookup returns the live process with the given pid.
func (r *Registry) Lookup(pid uint64) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[pid]
	return p, ok
}

func (r *Registry) unregister(pid uint64) {
	r.mu.Lock()
	delete(r.procs, pid)
	r.mu.Unlock()
	r.pids.Free(pid)
}

// List returns a snapshot of every live process, including init, for
// introspection callers (the daemon's /v1/processes view).
func (r *Registry) List() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	return out
}

// Spawn creates a brand-new process from an ELF image (spec §4.5's
// entry point into the clone/exec/wait state machine, used for the
// very first user process rather than via clone): a fresh address
// space is built from headers, a leader task is spawned to run body,
// and the process is parented to InitPID.
func (r *Registry) Spawn(priority int, headers []addrspace.ProgramHeader, entry, stackTop, stackSize uintptr, body Body) (*Process, error) {
	pid, err := r.pids.Alloc()
	if err != nil {
		return nil, err
	}
	as := addrspace.New(r.Phys)
	if _, err := as.LoadELF(entry, headers, stackTop, stackSize); err != nil {
		r.pids.Free(pid)
		return nil, err
	}
	p := &Process{
		PID:       pid,
		ParentPID: InitPID,
		AS:        as,
		FDs:       fd.New(r.FDCapacity),
		childExit: sched.NewWaitQueue(),
	}
	r.register(p)
	r.Init.addChild(p)

	p.Leader = r.Sys.Spawn(pid, priority, func(t *sched.Task) {
		code := body(p, t)
		r.exitProcess(p, t, code)
	})
	p.Leader.IsLeader = true
	return p, nil
}

// errNoSuchProcess is returned by Wait when the caller names a pid
// that is not (and never was, from this registry's perspective) one
// of its children.
var errNoSuchProcess = kerrno.New(kerrno.NotFound, "no such child process")
